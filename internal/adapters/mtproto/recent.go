package mtproto

// recentSet — ограниченное множество недавно виденных ключей с FIFO-вытеснением.
// Защищает от повторной доставки обновлений транспортом.
type recentSet struct {
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

func newRecentSet(capacity int) *recentSet {
	return &recentSet{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, capacity),
	}
}

// Add возвращает false, если ключ уже встречался. При переполнении вытесняет
// самый старый ключ.
func (s *recentSet) Add(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	if len(s.seen) >= s.capacity {
		oldest := s.order[s.head]
		delete(s.seen, oldest)
	}
	s.order[s.head] = key
	s.head = (s.head + 1) % s.capacity
	s.seen[key] = struct{}{}
	return true
}
