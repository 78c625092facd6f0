package drive

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/pkg/powerup"
	"golang.org/x/time/rate"
)

// Commander is the part of powerup.Session the controller drives.
type Commander interface {
	SetMotorSpeed(ctx context.Context, speed int) error
	SetRudderAngle(ctx context.Context, angle int) error
}

// State is the commanded speed and rudder angle.
type State struct {
	Speed int
	Angle int
}

// Options tunes a Controller.
type Options struct {
	SpeedStep  int
	RudderStep int
	MaxRate    float64 // commands per second
}

// Controller keeps the desired state and sends it to the controller no
// faster than MaxRate. Changes made while throttled are coalesced and sent
// by Flush.
type Controller struct {
	cmd     Commander
	opts    Options
	limiter *rate.Limiter
	logger  *logrus.Logger

	mu      sync.Mutex
	desired State
	sent    State
}

// NewController creates a controller starting from a stopped, centered state.
func NewController(cmd Commander, opts Options, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		cmd:     cmd,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.MaxRate), 1),
		logger:  logger,
	}
}

// State returns the desired state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired
}

// Handle applies k and sends the new state if the rate limit allows.
// It reports true when k asks to quit.
func (c *Controller) Handle(ctx context.Context, k Key) (bool, error) {
	c.mu.Lock()
	switch k {
	case KeyQuit:
		c.mu.Unlock()
		return true, nil
	case KeyFaster:
		c.desired.Speed = clamp(c.desired.Speed+c.opts.SpeedStep, powerup.MinMotorSpeed, powerup.MaxMotorSpeed)
	case KeySlower:
		c.desired.Speed = clamp(c.desired.Speed-c.opts.SpeedStep, powerup.MinMotorSpeed, powerup.MaxMotorSpeed)
	case KeyLeft:
		c.desired.Angle = clamp(c.desired.Angle-c.opts.RudderStep, powerup.MinRudderAngle, powerup.MaxRudderAngle)
	case KeyRight:
		c.desired.Angle = clamp(c.desired.Angle+c.opts.RudderStep, powerup.MinRudderAngle, powerup.MaxRudderAngle)
	case KeyCenter:
		c.desired.Angle = 0
	case KeyStop:
		c.desired = State{}
	}
	c.mu.Unlock()

	// stop is never throttled
	if k == KeyStop {
		return false, c.sync(ctx)
	}
	return false, c.Flush(ctx)
}

// Flush sends pending changes if the rate limit allows.
func (c *Controller) Flush(ctx context.Context) error {
	if !c.Pending() || !c.limiter.Allow() {
		return nil
	}
	return c.sync(ctx)
}

// Pending reports whether the desired state has not been sent yet.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired != c.sent
}

func (c *Controller) sync(ctx context.Context) error {
	c.mu.Lock()
	want, sent := c.desired, c.sent
	c.mu.Unlock()

	if want.Speed != sent.Speed {
		if err := c.cmd.SetMotorSpeed(ctx, want.Speed); err != nil {
			return err
		}
		sent.Speed = want.Speed
	}
	if want.Angle != sent.Angle {
		if err := c.cmd.SetRudderAngle(ctx, want.Angle); err != nil {
			c.setSent(sent)
			return err
		}
		sent.Angle = want.Angle
	}
	c.setSent(sent)

	c.logger.WithFields(logrus.Fields{"speed": sent.Speed, "angle": sent.Angle}).Debug("Drive state sent")
	return nil
}

func (c *Controller) setSent(s State) {
	c.mu.Lock()
	c.sent = s
	c.mu.Unlock()
}

// Stop unconditionally writes motor speed 0.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.desired.Speed = 0
	c.mu.Unlock()

	if err := c.cmd.SetMotorSpeed(ctx, 0); err != nil {
		return err
	}

	c.mu.Lock()
	c.sent.Speed = 0
	c.mu.Unlock()
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
