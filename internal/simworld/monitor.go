package simworld

// MergeMonitorLog puts incoming items ahead of existing ones and caps the
// result at capacity by dropping from the tail, so the oldest items go first.
// Both groups keep their internal order. Neither input is modified.
func MergeMonitorLog(existing, incoming []LogItem, capacity int) []LogItem {
	if capacity <= 0 {
		return []LogItem{}
	}
	if len(incoming) >= capacity {
		return append([]LogItem(nil), incoming[:capacity]...)
	}
	keep := min(len(existing), capacity-len(incoming))
	out := make([]LogItem, 0, len(incoming)+keep)
	out = append(out, incoming...)
	out = append(out, existing[:keep]...)
	return out
}

// logItemsFromMessage converts a monitor batch into snapshot log items.
// Unknown levels are recorded as INFO.
func logItemsFromMessage(msg *MonitorMessage) []LogItem {
	items := make([]LogItem, 0, len(msg.Item))
	for _, it := range msg.Item {
		items = append(items, LogItem{Source: it.Source, Msg: it.Msg, Level: it.LogLevel.OrInfo()})
	}
	return items
}
