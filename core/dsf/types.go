// Package dsf compiles approved expense sheets of the finance department
// into a single PDF and mails it for reimbursement.
package dsf

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/ndf/core/model"
)

// ErrLocked is returned when another worker holds the sheet lock.
var ErrLocked = errors.New("dsf: sheet locked")

// Bundle gathers everything rendered into the DSF document.
type Bundle struct {
	Sheet      model.ExpenseSheet
	Employee   model.User
	Department model.Department
	Form       model.Form
	Approver   model.User
	// Generated is printed in the report footer.
	Generated time.Time
}

// Document is a compiled DSF PDF.
type Document struct {
	Filename string
	PDF      []byte
	Pages    int
	// Skipped lists attachments replaced by a notice page.
	Skipped []string
}

// Compiler renders a bundle to PDF.
type Compiler interface {
	Compile(ctx context.Context, b Bundle) (Document, error)
}

// Message is an outgoing DSF e-mail.
type Message struct {
	To         []string
	Subject    string
	Body       string
	Attachment Document
}

// Mailer delivers DSF e-mails.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// Locker guards a sheet against concurrent dispatches.
type Locker interface {
	// Acquire returns a release func or ErrLocked.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
