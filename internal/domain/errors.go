package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable error category callers branch on.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindPersistence
	KindExternal
	KindForbidden
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	case KindExternal:
		return "external"
	case KindForbidden:
		return "forbidden"
	case KindUnauthenticated:
		return "unauthenticated"
	}
	return "internal"
}

var (
	// ErrInvalidInput is returned for malformed input, e.g. scoring a zero-question exam.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExamNotFound indicates the exam could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrQuestionNotFound indicates a question ID does not belong to the exam.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a selected option is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNoQuestions is returned when an exam has no questions to take.
	ErrNoQuestions = errors.New("no questions available")
	// ErrResultNotFound indicates the student has no result for the exam.
	ErrResultNotFound = errors.New("result not found")
	// ErrResultExists is returned when a result for (student, exam) is already stored.
	ErrResultExists = errors.New("exam already completed")
	// ErrUserNotFound indicates the user record is missing.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when no live session exists for the caller.
	ErrSessionNotFound = errors.New("exam session not found")
	// ErrSessionClosed is returned for mutations on a submitting or finished session.
	ErrSessionClosed = errors.New("exam session is closed")
	// ErrTimeExpired is returned for answer changes after the countdown reached zero.
	ErrTimeExpired = errors.New("exam time expired")
	// ErrSubmissionInFlight is returned when a second submission races the first.
	ErrSubmissionInFlight = errors.New("submission already in progress")
	// ErrNotLastQuestion is returned when finishing explicitly before the final question.
	ErrNotLastQuestion = errors.New("finish is only available on the last question")
	// ErrForbidden indicates the caller's role lacks the capability.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates no principal is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is returned when re-verification fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConfirmationRequired guards destructive operations.
	ErrConfirmationRequired = errors.New("explicit confirmation required")
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindValidation},
	{ErrOptionNotFound, KindValidation},
	{ErrNotLastQuestion, KindValidation},
	{ErrConfirmationRequired, KindValidation},
	{ErrExamNotFound, KindNotFound},
	{ErrQuestionNotFound, KindNotFound},
	{ErrNoQuestions, KindNotFound},
	{ErrResultNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrSessionNotFound, KindNotFound},
	{ErrResultExists, KindConflict},
	{ErrSessionClosed, KindConflict},
	{ErrTimeExpired, KindConflict},
	{ErrSubmissionInFlight, KindConflict},
	{ErrForbidden, KindForbidden},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrInvalidCredentials, KindUnauthenticated},
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a kinded error with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind and op. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost kinded error or sentinel in err's chain.
func KindOf(err error) Kind {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if kinded, ok := e.(*Error); ok && kinded.Kind != KindInternal {
			return kinded.Kind
		}
		for _, s := range sentinelKinds {
			if e == s.err {
				return s.kind
			}
		}
	}
	return KindInternal
}
