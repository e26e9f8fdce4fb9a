package reminder

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Scheduler struct {
	ledger   Ledger
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
	keep     time.Duration
	timeout  time.Duration
	inFlight atomic.Bool
}

type SchedulerOptions struct {
	Now     func() time.Time
	Keep    time.Duration // retention for fired records past appointment start
	Timeout time.Duration // upper bound for a single scan, 0 means unbounded
}

func NewScheduler(ledger Ledger, notifier Notifier, log zerolog.Logger, opts SchedulerOptions) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Keep <= 0 {
		opts.Keep = 24 * time.Hour
	}
	return &Scheduler{
		ledger:   ledger,
		notifier: notifier,
		log:      log.With().Str("component", "reminder").Logger(),
		now:      opts.Now,
		keep:     opts.Keep,
		timeout:  opts.Timeout,
	}
}

// Start runs Scan on every minute boundary until ctx is cancelled. A scan
// that outlasts the minute causes the next tick to be skipped rather than
// overlapped.
func (s *Scheduler) Start(ctx context.Context) *cron.Cron {
	logger := cronLogger{s.log}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)))

	_, _ = c.AddFunc("* * * * *", func() { s.tick(ctx) })

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()

	return c
}

// tick bounds a single scan with the configured timeout so that a hung
// store or notifier call cannot stall the cron chain forever.
func (s *Scheduler) tick(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.Scan(ctx); err != nil {
		s.log.Error().Err(err).Msg("reminder scan failed")
	}
}

// Scan runs one pass: for each fixed offset, query the minute-wide window
// of confirmed appointments and remind each one not already reminded.
// Failures are isolated per appointment; one dead recipient channel never
// blocks the rest of the scan.
func (s *Scheduler) Scan(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn().Msg("previous scan still running, skipping")
		return nil
	}
	defer s.inFlight.Store(false)

	tick := s.now().Truncate(time.Minute)

	var matched, sent, failed int
	for _, off := range offsets {
		from := tick.Add(off.Lead)
		to := from.Add(time.Minute)

		targets, err := s.ledger.FindConfirmedInWindow(ctx, from, to)
		if err != nil {
			return fmt.Errorf("find appointments for %s window: %w", off.Kind, err)
		}

		for _, target := range targets {
			matched++
			emitted, err := s.remind(ctx, target, off)
			if err != nil {
				failed++
				s.log.Error().Err(err).
					Str("appointment_id", target.AppointmentID.String()).
					Str("kind", string(off.Kind)).
					Msg("reminder delivery failed")
				continue
			}
			sent += emitted
		}
	}

	if pruned, err := s.ledger.PruneFiredBefore(ctx, tick.Add(-s.keep)); err != nil {
		s.log.Warn().Err(err).Msg("prune reminder log")
	} else if pruned > 0 {
		s.log.Debug().Int64("pruned", pruned).Msg("pruned fired-reminder records")
	}

	if matched > 0 {
		s.log.Info().
			Int("matched", matched).
			Int("sent", sent).
			Int("failed", failed).
			Time("tick", tick).
			Msg("reminder scan complete")
	}

	return nil
}

// remind emits one reminder for one appointment and offset, deduplicated
// against the fired log. Recording happens right after emission, in the
// same step, so a crash between the two leaves the smallest possible
// duplicate-send window.
func (s *Scheduler) remind(ctx context.Context, target Target, off offsetSpec) (int, error) {
	fired, err := s.ledger.AlreadyFired(ctx, target.AppointmentID, off.Kind)
	if err != nil {
		return 0, fmt.Errorf("check fired log: %w", err)
	}
	if fired {
		return 0, nil
	}

	base := Payload{
		AppointmentID: target.AppointmentID,
		Time:          target.ScheduledAt,
		Kind:          off.Kind,
	}

	type delivery struct {
		topic   Topic
		message string
	}
	deliveries := []delivery{
		{UserTopic(target.PatientID), fmt.Sprintf("%s with Dr. %s", off.Text, target.DoctorName)},
		{UserTopic(target.DoctorID), fmt.Sprintf("%s with %s", off.Text, target.PatientName)},
	}
	if target.ClinicID != nil {
		deliveries = append(deliveries, delivery{
			ClinicTopic(*target.ClinicID),
			fmt.Sprintf("%s: Dr. %s - %s", off.Text, target.DoctorName, target.PatientName),
		})
	}

	emitted := 0
	var deliveryErr error
	for _, d := range deliveries {
		payload := base
		payload.Message = d.message
		if err := s.notifier.Notify(ctx, d.topic, payload); err != nil {
			deliveryErr = fmt.Errorf("notify %s: %w", d.topic, err)
			continue
		}
		emitted++
	}

	if err := s.ledger.RecordFired(ctx, target.AppointmentID, off.Kind); err != nil {
		return emitted, fmt.Errorf("record fired reminder: %w", err)
	}

	return emitted, deliveryErr
}

// cronLogger adapts zerolog to the cron logging interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
