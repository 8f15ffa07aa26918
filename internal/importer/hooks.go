package importer

import (
	"context"
	"fmt"

	"catalog-service/internal/models"

	"github.com/sirupsen/logrus"
)

// PostCommitHook is a side effect run after a group commits. Hook errors are
// logged and never change the group's results.
type PostCommitHook interface {
	Name() string
	AfterCommit(ctx context.Context, run *models.ImportRun, outcome *GroupOutcome) error
}

// runHooks invokes hooks in order, isolating each from the others
func runHooks(ctx context.Context, hooks []PostCommitHook, run *models.ImportRun, outcome *GroupOutcome, logger *logrus.Entry) {
	for _, hook := range hooks {
		if err := callHook(ctx, hook, run, outcome); err != nil {
			logger.WithFields(logrus.Fields{
				"hook":      hook.Name(),
				"group_key": outcome.Key,
			}).WithError(err).Warn("Post-commit hook failed")
		}
	}
}

func callHook(ctx context.Context, hook PostCommitHook, run *models.ImportRun, outcome *GroupOutcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook.AfterCommit(ctx, run, outcome)
}
