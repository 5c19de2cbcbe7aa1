package postgres

import (
	"github.com/eriker75/onenglish-sub004/internal/assessment"
	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/eriker75/onenglish-sub004/internal/catalog"
	"github.com/eriker75/onenglish-sub004/internal/points"
)

// Ensure the PostgreSQL store implements the consumer interfaces.
var (
	_ catalog.Store       = (*Store)(nil)
	_ assessment.Store    = (*Store)(nil)
	_ points.Store        = (*Store)(nil)
	_ points.ParentLocker = (*Store)(nil)
	_ attempt.Tracker     = (*AttemptTracker)(nil)
)
