package keypool

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const maxCooldownFactor = 10

type keyState struct {
	secret    string
	failures  int
	coolUntil time.Time
}

// Pool holds the upstream credentials and their failure state. It is the only
// piece of state shared across in-flight requests; all access goes through a
// single mutex.
type Pool struct {
	mu       sync.Mutex
	keys     []*keyState
	cursor   int
	cooldown time.Duration

	now func() time.Time
}

func New(secrets []string, cooldown time.Duration) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("key pool must have at least one credential")
	}
	p := &Pool{
		cooldown: cooldown,
		now:      time.Now,
	}
	p.setKeys(secrets)
	return p, nil
}

func (p *Pool) setKeys(secrets []string) {
	old := make(map[string]*keyState, len(p.keys))
	for _, ks := range p.keys {
		old[ks.secret] = ks
	}
	keys := make([]*keyState, 0, len(secrets))
	seen := make(map[string]bool, len(secrets))
	for _, s := range secrets {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if ks, ok := old[s]; ok {
			keys = append(keys, ks)
			continue
		}
		keys = append(keys, &keyState{secret: s})
	}
	p.keys = keys
	p.cursor = 0
}

// UpdateKeys replaces the credential set, keeping cooldown state for
// credentials that survive the reload.
func (p *Pool) UpdateKeys(secrets []string) error {
	if len(secrets) == 0 {
		return fmt.Errorf("key pool must have at least one credential")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setKeys(secrets)
	logrus.Infof("[keypool] credential set updated, %d keys", len(p.keys))
	return nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Available returns how many credentials are currently outside cooldown.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for _, ks := range p.keys {
		if !ks.coolUntil.After(now) {
			n++
		}
	}
	return n
}

// Primary returns a fixed credential for calls that do not balance.
func (p *Pool) Primary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[0].secret
}

// Next selects the next credential in round-robin order, skipping credentials
// already in tried. Cooling credentials are passed over while a fresh one
// exists; if every untried credential is cooling, the one whose cooldown
// expires soonest is returned. ok is false only when every credential has
// been tried.
func (p *Pool) Next(tried map[string]bool) (secret string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var coolest *keyState
	for i := 0; i < len(p.keys); i++ {
		ks := p.keys[(p.cursor+i)%len(p.keys)]
		if tried[ks.secret] {
			continue
		}
		if !ks.coolUntil.After(now) {
			p.cursor = (p.cursor + i + 1) % len(p.keys)
			return ks.secret, true
		}
		if coolest == nil || ks.coolUntil.Before(coolest.coolUntil) {
			coolest = ks
		}
	}
	if coolest != nil {
		return coolest.secret, true
	}
	return "", false
}

// MarkFailure puts the credential into cooldown. Repeated failures extend the
// cooldown linearly up to a cap.
func (p *Pool) MarkFailure(secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ks := range p.keys {
		if ks.secret != secret {
			continue
		}
		ks.failures++
		factor := ks.failures
		if factor > maxCooldownFactor {
			factor = maxCooldownFactor
		}
		ks.coolUntil = p.now().Add(p.cooldown * time.Duration(factor))
		logrus.Debugf("[keypool] credential cooling for %v after %d failures", p.cooldown*time.Duration(factor), ks.failures)
		return
	}
}

// MarkSuccess clears any failure state for the credential.
func (p *Pool) MarkSuccess(secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ks := range p.keys {
		if ks.secret != secret {
			continue
		}
		ks.failures = 0
		ks.coolUntil = time.Time{}
		return
	}
}
