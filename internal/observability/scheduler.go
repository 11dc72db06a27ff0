// Copyright (c) 2026 The netlab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package observability

import (
	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic housekeeping jobs; the binaries schedule
// trace-log rotation on it. It plays the same background role cron plays
// for the teacher's backup rotation.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler builds an idle scheduler; call Start to begin running jobs.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddJob schedules fn on the given cron spec (e.g. "@hourly", "*/5 * * * *").
func (s *Scheduler) AddJob(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
