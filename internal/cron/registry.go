package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one maintenance task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order, unique by name.
type Registry struct {
	jobs  []Job
	index map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{index: map[string]int{}}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register adds job. Nil jobs and repeated names are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if _, dup := r.index[job.Name()]; dup {
		return
	}
	r.index[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name()
	}
	return names
}

// Select narrows the registry to a comma-separated list of job names. An
// empty selection keeps every job; an unknown name is an error.
func (r *Registry) Select(selection string) (*Registry, error) {
	if strings.TrimSpace(selection) == "" {
		return r, nil
	}
	picked := NewRegistry()
	for _, name := range strings.Split(selection, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		i, ok := r.index[name]
		if !ok {
			return nil, fmt.Errorf("unknown job %q (have %s)", name, strings.Join(r.Names(), ", "))
		}
		picked.Register(r.jobs[i])
	}
	return picked, nil
}
