package trace

// Tee delivers every event to primary and then to each of others. Outcomes
// and spans come from primary.
func Tee(primary Handler, others ...Handler) Handler {
	if len(others) == 0 {
		return primary
	}
	return &tee{primary: primary, others: others}
}

type tee struct {
	primary Handler
	others  []Handler
}

func (t *tee) OnStart(ev StartEvent) Outcome {
	out := t.primary.OnStart(ev)
	// others must see the same run id primary assigned
	ev.RunID = out.RunID
	for _, h := range t.others {
		h.OnStart(ev)
	}
	return out
}

func (t *tee) OnEnd(ev EndEvent) (Span, bool) {
	span, ok := t.primary.OnEnd(ev)
	for _, h := range t.others {
		h.OnEnd(ev)
	}
	return span, ok
}
