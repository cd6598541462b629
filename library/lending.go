package library

import (
	"math"
	"strconv"
	"strings"

	"libsys/date"
)

// LendRequest identifies the borrower by phone and the copy by id. Name is
// only used when the phone number is new.
type LendRequest struct {
	Name   string
	Phone  string
	BookID int
}

// LendResult describes a completed loan.
type LendResult struct {
	Borrow  Borrow
	User    User
	NewUser bool
	// Remaining is how many more books the user may borrow.
	Remaining int
}

// Lend opens a loan after checking, in order: the borrower holds no
// overdue book, has no penalty covering today, is below the loan limit,
// and the copy exists, is not retired and is not already lent.
func (lm *LibraryManager) Lend(req LendRequest, today date.Date) (LendResult, error) {
	res, err := lm.lend(req, today)
	if err != nil {
		return res, lm.rejected("lend", err)
	}
	return res, lm.commit("lend")
}

func (lm *LibraryManager) lend(req LendRequest, today date.Date) (LendResult, error) {
	if err := lm.checkLogOrder(today); err != nil {
		return LendResult{}, err
	}

	phone := strings.TrimSpace(req.Phone)
	if !ValidPhone(phone) {
		return LendResult{}, reject(CodeInvalidArgument, "phone number must look like 010-1234-5678")
	}
	user, found := lm.store.UserByPhone(phone)
	if !found {
		name := strings.TrimSpace(req.Name)
		if err := checkText("borrower name", name); err != nil {
			return LendResult{}, err
		}
		user = User{ID: lm.store.nextUserID(), Phone: phone, Name: name}
	}

	active := lm.store.ActiveBorrowsByUser(user.ID)
	var overdue []string
	for _, b := range active {
		if IsOverdue(b, today) {
			overdue = append(overdue, strconv.Itoa(b.BookID))
		}
	}
	if len(overdue) > 0 {
		return LendResult{}, reject(CodeOverdue, "%s has overdue books (%s) and cannot borrow", user.Name, strings.Join(overdue, ", "))
	}
	if found {
		if p, ok := lm.store.ActivePenalty(user.ID, today); ok {
			return LendResult{}, reject(CodePenalty, "%s is under an overdue penalty until %s", user.Name, p.End)
		}
	}
	if len(active) >= lm.cfg.MaxBorrowCount {
		ids := make([]string, len(active))
		for i, b := range active {
			ids[i] = strconv.Itoa(b.BookID)
		}
		return LendResult{}, reject(CodeLimit, "%s already has %d books on loan (%s)", user.Name, len(active), strings.Join(ids, ", "))
	}

	book, ok := lm.store.Book(req.BookID)
	if !ok {
		return LendResult{}, reject(CodeNotFound, "book %d does not exist", req.BookID)
	}
	if book.Status.IsRetired() {
		return LendResult{}, reject(CodeRetired, "book %d was retired on %s", book.ID, book.Status.Since)
	}
	if br, ok := lm.store.ActiveBorrow(book.ID); ok {
		return LendResult{}, reject(CodeOnLoan, "book %d is already on loan until %s", book.ID, br.DueDate)
	}
	due, err := today.AddDays(lm.cfg.LoanDays)
	if err != nil {
		return LendResult{}, reject(CodeInvalidArgument, "cannot compute due date: %v", err)
	}

	if !found {
		lm.store.addUser(user)
	}
	borrow := lm.store.addBorrow(Borrow{BookID: book.ID, UserID: user.ID, BorrowDate: today, DueDate: due})
	lm.store.addLog(Log{ISBN: book.ISBN, BookID: nullID(book.ID), BorrowID: nullID(borrow.ID), Date: today, Type: LogBorrow})

	lm.log.Info("book lent", "book_id", book.ID, "user_id", user.ID, "due", due.String())
	return LendResult{
		Borrow:    borrow,
		User:      user,
		NewUser:   !found,
		Remaining: lm.cfg.MaxBorrowCount - len(active) - 1,
	}, nil
}

// ReturnResult describes a completed return and any penalty it caused.
type ReturnResult struct {
	Borrow      Borrow
	User        User
	OverdueDays int
	PenaltyDays int
	// Penalty is the window created or extended; nil when returned on time.
	Penalty  *Penalty
	Extended bool
}

// AcceptReturn closes the active loan of a copy. A late return creates a
// penalty window starting today, or extends the user's window that
// already covers today.
func (lm *LibraryManager) AcceptReturn(bookID int, today date.Date) (ReturnResult, error) {
	res, err := lm.acceptReturn(bookID, today)
	if err != nil {
		return res, lm.rejected("return", err)
	}
	return res, lm.commit("return")
}

func (lm *LibraryManager) acceptReturn(bookID int, today date.Date) (ReturnResult, error) {
	if err := lm.checkLogOrder(today); err != nil {
		return ReturnResult{}, err
	}
	book, ok := lm.store.Book(bookID)
	if !ok {
		return ReturnResult{}, reject(CodeNotFound, "book %d does not exist", bookID)
	}
	borrow, ok := lm.store.ActiveBorrow(bookID)
	if !ok {
		return ReturnResult{}, reject(CodeNotOnLoan, "book %d is not on loan", bookID)
	}
	if today.Before(borrow.BorrowDate) {
		return ReturnResult{}, reject(CodeInvalidArgument, "book %d was lent on %s, after %s", bookID, borrow.BorrowDate, today)
	}
	user, _ := lm.store.User(borrow.UserID)

	res := ReturnResult{User: user, OverdueDays: max(0, today.Sub(borrow.DueDate))}
	var penalty Penalty
	if res.OverdueDays > 0 {
		scaled := math.Floor(float64(res.OverdueDays) * lm.cfg.PenaltyScale)
		if math.IsNaN(scaled) || scaled > math.MaxInt32 {
			return ReturnResult{}, reject(CodeInvalidArgument, "penalty of %g days is out of range", scaled)
		}
		res.PenaltyDays = int(scaled)
		if existing, ok := lm.store.ActivePenalty(user.ID, today); ok {
			end, err := existing.End.AddDays(res.PenaltyDays)
			if err != nil {
				return ReturnResult{}, reject(CodeInvalidArgument, "cannot extend penalty: %v", err)
			}
			penalty, res.Extended = existing, true
			penalty.End = end
		} else {
			end, err := today.AddDays(res.PenaltyDays)
			if err != nil {
				return ReturnResult{}, reject(CodeInvalidArgument, "cannot compute penalty: %v", err)
			}
			penalty = Penalty{UserID: user.ID, Start: today, End: end}
		}
	}

	borrow.Returned = date.Some(today)
	lm.store.putBorrow(borrow)
	if res.OverdueDays > 0 {
		if res.Extended {
			lm.store.putPenalty(penalty)
		} else {
			penalty = lm.store.addPenalty(penalty)
		}
		res.Penalty = &penalty
	}
	lm.store.addLog(Log{ISBN: book.ISBN, BookID: nullID(book.ID), BorrowID: nullID(borrow.ID), Date: today, Type: LogReturn})
	res.Borrow = borrow

	lm.log.Info("book returned", "book_id", bookID, "user_id", user.ID, "overdue_days", res.OverdueDays, "penalty_days", res.PenaltyDays)
	return res, nil
}

// CheckToday rejects a working date earlier than anything already
// recorded: ISBN and copy registrations, loans and log entries.
func (lm *LibraryManager) CheckToday(today date.Date) error {
	var latest date.Date
	consider := func(d date.Date) {
		if latest.IsZero() || d.After(latest) {
			latest = d
		}
	}
	for _, i := range lm.store.isbns {
		consider(i.RegisterDate)
	}
	for _, b := range lm.store.books {
		consider(b.RegisterDate)
	}
	for _, b := range lm.store.borrows {
		consider(b.BorrowDate)
	}
	if last, ok := lm.store.LastLogDate(); ok {
		consider(last)
	}
	if !latest.IsZero() && today.Before(latest) {
		return reject(CodeLogOrder, "date %s is before the latest recorded date %s", today, latest)
	}
	return nil
}
