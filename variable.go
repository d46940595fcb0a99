package oocsi

import "sync"

// Variable is a numeric value mirrored over an OOCSI channel: Set sends it
// out under its key, and incoming messages carrying the key update the
// local copy. Optional clamping and window smoothing match the behavior
// embedded sensor sketches expect.
type Variable struct {
	client  *Client
	channel string
	key     string

	mu       sync.Mutex
	value    float64
	values   []float64
	window   int
	sigma    float64
	hasSigma bool
	min      float64
	hasMin   bool
	max      float64
	hasMax   bool
}

// Variable subscribes to channel and mirrors the value stored under key.
func (c *Client) Variable(channel, key string) (*Variable, error) {
	v := &Variable{
		client:  c,
		channel: channel,
		key:     key,
	}
	if err := c.Subscribe(channel, v.receive); err != nil {
		return nil, err
	}
	return v, nil
}

// Min sets a lower bound; values below it are clamped. Chainable.
func (v *Variable) Min(min float64) *Variable {
	v.mu.Lock()
	v.min, v.hasMin = min, true
	if v.value < min {
		v.value = min
	}
	v.mu.Unlock()
	return v
}

// Max sets an upper bound; values above it are clamped. Chainable.
func (v *Variable) Max(max float64) *Variable {
	v.mu.Lock()
	v.max, v.hasMax = max, true
	if v.value > max {
		v.value = max
	}
	v.mu.Unlock()
	return v
}

// Smooth averages the last window values on Get. A non-zero sigma limits
// how far one update may move the value away from the current mean.
// Chainable.
func (v *Variable) Smooth(window int, sigma float64) *Variable {
	v.mu.Lock()
	v.window = window
	v.sigma = sigma
	v.hasSigma = sigma != 0
	v.mu.Unlock()
	return v
}

// Get returns the current value, or the window mean when smoothing is on.
func (v *Variable) Get() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current()
}

func (v *Variable) current() float64 {
	if v.window > 0 && len(v.values) > 0 {
		sum := 0.0
		for _, x := range v.values {
			sum += x
		}
		return sum / float64(len(v.values))
	}
	return v.value
}

// Set stores value locally (after clamping/smoothing) and publishes the
// raw value to the channel.
func (v *Variable) Set(value float64) error {
	v.mu.Lock()
	v.absorb(value)
	v.mu.Unlock()
	return v.client.Send(v.channel, map[string]any{v.key: value})
}

// receive feeds channel updates into the variable.
func (v *Variable) receive(_, _ string, payload map[string]any) {
	raw, ok := payload[v.key]
	if !ok {
		return
	}
	value, ok := toFloat(raw)
	if !ok {
		return
	}
	v.mu.Lock()
	v.absorb(value)
	v.mu.Unlock()
}

// absorb applies bounds and smoothing, then stores. Callers hold v.mu.
func (v *Variable) absorb(value float64) {
	switch {
	case v.hasMin && value < v.min:
		value = v.min
	case v.hasMax && value > v.max:
		value = v.max
	case v.hasSigma && len(v.values) > 0:
		mean := v.current()
		if diff := mean - value; diff > v.sigma {
			value = mean - v.sigma/float64(len(v.values))
		} else if -diff > v.sigma {
			value = mean + v.sigma/float64(len(v.values))
		}
	}

	if v.window > 0 {
		v.values = append(v.values, value)
		if len(v.values) > v.window {
			v.values = v.values[len(v.values)-v.window:]
		}
		return
	}
	v.value = value
}

func toFloat(raw any) (float64, bool) {
	switch x := raw.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
