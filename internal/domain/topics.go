package domain

// IntroductionTopic is always the first covered topic.
const IntroductionTopic = "Introduction"

// Topics is the ordered set of subject areas covered so far. It only grows.
type Topics []string

// NewTopics returns the initial topic list.
func NewTopics() Topics {
	return Topics{IntroductionTopic}
}

// Merge folds a backend-reported topic list into t and returns the result.
// The backend list is authoritative when adopting it does not shrink the
// set; otherwise unseen entries are appended to the current list. Immediate
// repeats are collapsed and the introduction topic stays first.
// len(result) >= len(t) always holds.
func (t Topics) Merge(incoming []string) Topics {
	if len(incoming) == 0 {
		return t.clone()
	}

	adopted := collapseRepeats(incoming)
	if len(t) > 0 && t[0] == IntroductionTopic {
		adopted = pinIntroduction(adopted)
	}
	if len(adopted) >= len(t) {
		return adopted
	}

	out := t.clone()
	seen := make(map[string]struct{}, len(out))
	for _, topic := range out {
		seen[topic] = struct{}{}
	}
	for _, topic := range incoming {
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	return out
}

// pinIntroduction moves the introduction topic to the front.
func pinIntroduction(in Topics) Topics {
	if len(in) > 0 && in[0] == IntroductionTopic {
		return in
	}
	out := make(Topics, 0, len(in)+1)
	out = append(out, IntroductionTopic)
	for _, topic := range in {
		if topic != IntroductionTopic {
			out = append(out, topic)
		}
	}
	return out
}

func (t Topics) clone() Topics {
	out := make(Topics, len(t))
	copy(out, t)
	return out
}

func collapseRepeats(in []string) Topics {
	out := make(Topics, 0, len(in))
	for _, topic := range in {
		if topic == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == topic {
			continue
		}
		out = append(out, topic)
	}
	return out
}
