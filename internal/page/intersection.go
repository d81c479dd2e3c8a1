package page

// IntersectionEntry reports an observed element's visible ratio.
// IsIntersecting is true when the ratio has reached the observation
// threshold.
type IntersectionEntry struct {
	Target         *Element
	Ratio          float64
	IsIntersecting bool
}

type observation struct {
	id           uint64
	el           *Element
	threshold    float64
	cb           func(IntersectionEntry)
	evaluated    bool
	intersecting bool
}

// ObserveIntersection registers cb for el. The callback receives one entry
// on the first UpdateIntersections after registration and one on every
// threshold crossing after that.
func (d *Document) ObserveIntersection(el *Element, threshold float64, cb func(IntersectionEntry)) *Subscription {
	d.lmu.Lock()
	d.nextID++
	o := &observation{id: d.nextID, el: el, threshold: threshold, cb: cb}
	d.observations = append(d.observations, o)
	d.lmu.Unlock()

	return newSubscription(func() {
		d.lmu.Lock()
		defer d.lmu.Unlock()
		for i, other := range d.observations {
			if other.id == o.id {
				d.observations = append(d.observations[:i:i], d.observations[i+1:]...)
				return
			}
		}
	})
}

// UpdateIntersections evaluates every observation against the current
// viewport. Callbacks run after the document's locks are released.
func (d *Document) UpdateIntersections() {
	type pending struct {
		cb    func(IntersectionEntry)
		entry IntersectionEntry
	}
	var fire []pending

	d.lmu.Lock()
	for _, o := range d.observations {
		ratio := d.IntersectionRatio(o.el)
		intersecting := ratio >= o.threshold
		if o.evaluated && intersecting == o.intersecting {
			continue
		}
		o.evaluated = true
		o.intersecting = intersecting
		fire = append(fire, pending{cb: o.cb, entry: IntersectionEntry{Target: o.el, Ratio: ratio, IsIntersecting: intersecting}})
	}
	d.lmu.Unlock()

	for _, p := range fire {
		p.cb(p.entry)
	}
}

// IntersectionRatio is the visible fraction of el's box inside the
// viewport. Elements without layout never intersect.
func (d *Document) IntersectionRatio(el *Element) float64 {
	if _, ok := d.Box(el); !ok {
		return 0
	}
	r := d.BoundingClientRect(el)
	vw, vh := d.Viewport()

	if r.Width() <= 0 || r.Height() <= 0 {
		if r.Top >= 0 && r.Left >= 0 && r.Bottom <= vh && r.Right <= vw {
			return 1
		}
		return 0
	}

	w := min(r.Right, vw) - max(r.Left, 0)
	h := min(r.Bottom, vh) - max(r.Top, 0)
	if w <= 0 || h <= 0 {
		return 0
	}
	return (w * h) / (r.Width() * r.Height())
}
