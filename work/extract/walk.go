package extract

// Visitor is called once for every object member reached by Walk.
type Visitor func(key string, v Value)

// Walk visits every object member under root depth-first in document order.
// fn sees a member before Walk descends into its value. Array elements are
// descended into in order but are not reported themselves since they have no
// key. Containers already on the visited set are skipped, and descent stops
// at MaxDepth, so cyclic documents built in code terminate.
func Walk(root Value, fn Visitor) {
	w := walker{fn: fn, seen: make(map[any]struct{})}
	w.walk(root, 0)
}

type walker struct {
	fn   Visitor
	seen map[any]struct{}
}

func (w *walker) walk(v Value, depth int) {
	if depth > MaxDepth {
		return
	}

	switch node := v.(type) {
	case *Object:
		if node == nil || w.visit(node) {
			return
		}
		for _, m := range node.Members {
			w.fn(m.Key, m.Value)
			w.walk(m.Value, depth+1)
		}
	case *Array:
		if node == nil || w.visit(node) {
			return
		}
		for _, e := range node.Elems {
			w.walk(e, depth+1)
		}
	}
}

// visit marks c as seen and reports whether it had been seen before.
func (w *walker) visit(c any) bool {
	if _, ok := w.seen[c]; ok {
		return true
	}
	w.seen[c] = struct{}{}
	return false
}
