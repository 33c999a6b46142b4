package markov

// Symbol is anything a chain can be built over. Key is the canonical identity
// of the symbol: two symbols with equal keys are the same symbol. Duration is
// the amount of musical time the symbol advances, used by duration targets.
type Symbol interface {
	Key() string
	Duration() float64
}

// keySeparator joins symbol keys into context keys. Symbol keys never
// contain it.
const keySeparator = "\x1e"

// appendWindowKey appends the context key of a window of symbol keys to buf.
func appendWindowKey(buf []byte, keys []string) []byte {
	for j, key := range keys {
		if j > 0 {
			buf = append(buf, keySeparator...)
		}
		buf = append(buf, key...)
	}
	return buf
}
