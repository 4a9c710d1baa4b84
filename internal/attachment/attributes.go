package attachment

// Attributes is an insertion-ordered string-keyed map. It is the attribute
// store the persistence engine reads from and writes to.
type Attributes struct {
	keys   []string
	values map[string]any
}

func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

func (a *Attributes) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a *Attributes) Has(key string) bool {
	_, ok := a.values[key]
	return ok
}

// Set writes key. A new key is appended; an existing key keeps its position.
func (a *Attributes) Set(key string, value any) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a *Attributes) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (a *Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a *Attributes) Len() int {
	return len(a.keys)
}

// Map returns a shallow copy of the store.
func (a *Attributes) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}
