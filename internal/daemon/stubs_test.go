package daemon

import (
	"context"
	"sync"

	"curator/internal/catalog"
	"curator/internal/organizer"
	"curator/internal/workflow"
)

type stubReconciler struct {
	mu          sync.Mutex
	cycles      int
	cycleErr    error
	resolveErr  error
	result      workflow.ManualResult
	lastRequest workflow.ManualRequest
	retried     []string
	rebuilds    int
}

func (s *stubReconciler) RunCycle(context.Context) (workflow.CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	return workflow.CycleReport{}, s.cycleErr
}

func (s *stubReconciler) Rebuild(context.Context) (organizer.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuilds++
	return organizer.Report{Created: 2, Revision: 7}, nil
}

func (s *stubReconciler) ManualResolve(_ context.Context, req workflow.ManualRequest) (workflow.ManualResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequest = req
	if s.resolveErr != nil {
		return workflow.ManualResult{}, s.resolveErr
	}
	return s.result, nil
}

func (s *stubReconciler) Retry(_ context.Context, ref string) (catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried = append(s.retried, ref)
	return catalog.Entry{ID: 1, Path: ref, State: catalog.StateNew}, nil
}

func (s *stubReconciler) Status() workflow.StatusSummary {
	return workflow.StatusSummary{}
}

func (s *stubReconciler) cycleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}
