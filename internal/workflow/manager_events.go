package workflow

import "mixtape/internal/batch"

const subscriberBuffer = 16

// Subscribe returns a channel that receives a Progress value after every
// state change of batch id. Slow subscribers miss intermediate updates but
// always receive the terminal one. The
// returned func unsubscribes and closes the channel; the channel is also
// closed when the batch is deleted.
func (m *Manager) Subscribe(id string) (<-chan Progress, func()) {
	ch := make(chan Progress, subscriberBuffer)
	m.subMu.Lock()
	set, ok := m.subs[id]
	if !ok {
		set = make(map[chan Progress]struct{})
		m.subs[id] = set
	}
	set[ch] = struct{}{}
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if set, ok := m.subs[id]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(m.subs, id)
			}
		}
	}
}

func (m *Manager) publish(b *batch.Batch) {
	if b == nil {
		return
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	set := m.subs[b.ID]
	if len(set) == 0 {
		return
	}
	progress := progressOf(b)
	terminal := progress.Status.IsTerminal()
	for ch := range set {
		select {
		case ch <- progress:
			continue
		default:
		}
		if !terminal {
			continue
		}
		// Make room for the final state by dropping the oldest update.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- progress:
		default:
		}
	}
}

func (m *Manager) closeSubscribers(id string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
}
