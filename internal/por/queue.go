package por

import "sync"

// Queue runs verification jobs with bounded worker concurrency.
//
// Jobs are admitted FIFO; execution order beyond admission is not
// guaranteed, since up to `concurrency` jobs run at once and may finish in
// any order. The queue is in-memory only: a process restart loses queued
// and in-flight jobs (re-submitting the same archive re-enqueues it).
type Queue struct {
	mu          sync.Mutex
	idle        *sync.Cond
	jobs        []*Job
	active      int
	concurrency int
	run         func(*Job)
}

// NewQueue creates a queue that runs each job through run with at most
// concurrency workers active at once.
func NewQueue(concurrency int, run func(*Job)) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	q := &Queue{
		concurrency: concurrency,
		run:         run,
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends the job and triggers a dispatch check.
func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.dispatch()
}

// dispatch starts workers for queued jobs while capacity remains. The queue
// list and active counter are only touched under the mutex, so no two
// dispatch decisions interleave mid-decision.
func (q *Queue) dispatch() {
	q.mu.Lock()
	for q.active < q.concurrency && len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.active++
		go q.worker(job)
	}
	q.mu.Unlock()
}

func (q *Queue) worker(job *Job) {
	q.run(job)

	q.mu.Lock()
	q.active--
	q.idle.Broadcast()
	q.mu.Unlock()

	q.dispatch()
}

// Len returns the number of jobs waiting for a worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Active returns the number of jobs currently being processed.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Drain blocks until the queue is empty and no worker is active.
func (q *Queue) Drain() {
	q.mu.Lock()
	for len(q.jobs) > 0 || q.active > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}
