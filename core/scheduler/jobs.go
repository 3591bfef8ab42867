package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/ndf/core/dsf"
	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
)

// Retrier re-sends DSF bundles not yet mailed.
type Retrier interface {
	Retry(ctx context.Context) (int, error)
}

// DSFRetry returns the dsf_retry job.
func DSFRetry(r Retrier, log logger.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := r.Retry(ctx)
		if n > 0 {
			log.Infof("dsf retry sent %d sheet(s)", n)
		}
		return err
	}
}

// Heads lists users and their memberships.
type Heads interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	UserMemberships(ctx context.Context, userID string) (model.Memberships, error)
}

// PendingLister returns the sheets a user may decide.
type PendingLister interface {
	PendingFor(ctx context.Context, actor model.User) ([]model.ExpenseSheet, error)
}

// Reminder mails each department head the number of sheets awaiting them.
type Reminder struct {
	Users   Heads
	Pending PendingLister
	Mailer  dsf.Mailer
	Log     logger.Logger
}

// Run is the pending_reminder job. Heads without pending sheets get no mail.
func (r Reminder) Run(ctx context.Context) error {
	users, err := r.Users.ListUsers(ctx)
	if err != nil {
		return err
	}
	var errs []error
	sent := 0
	for _, u := range users {
		ms, err := r.Users.UserMemberships(ctx, u.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(ms.HeadedBy(u.ID)) == 0 {
			continue
		}
		pending, err := r.Pending.PendingFor(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("pending for %s: %w", u.ID, err))
			continue
		}
		if len(pending) == 0 {
			continue
		}
		msg := dsf.Message{
			To:      []string{u.Email},
			Subject: fmt.Sprintf("[NDF] %d note(s) de frais en attente", len(pending)),
			Body:    reminderBody(u, pending),
		}
		if err := r.Mailer.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("remind %s: %w", u.Email, err))
			continue
		}
		sent++
	}
	r.Log.Infof("pending reminder mailed %d head(s)", sent)
	return errors.Join(errs...)
}

func reminderBody(u model.User, pending []model.ExpenseSheet) string {
	s := fmt.Sprintf("Bonjour %s,\n\n%d note(s) de frais attendent votre décision :\n", u.FullName(), len(pending))
	for _, p := range pending {
		s += fmt.Sprintf("- %s (%.2f EUR, déposée le %s)\n", p.ID, p.Total, p.CreatedAt.Format("02/01/2006"))
	}
	return s
}
