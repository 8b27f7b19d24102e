package liftoff

// updatePriorities advances every output's layers' pending priority counters
// once per Apply call, committing pending to current every priorityPeriod
// calls. It is the Go equivalent of layers_priority_update, lifted to
// device scope since the period is counted in page flips across the whole
// device.
func (d *Device) updatePriorities() {
	d.pageFlipCounter++
	rollover := d.pageFlipCounter%priorityPeriod == 0

	for _, o := range d.outputs.All() {
		for _, l := range o.layers.All() {
			l.updatePriority(rollover)
		}
	}
}
