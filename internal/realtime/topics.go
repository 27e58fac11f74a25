package realtime

// Topics carried by the hub.
const (
	// TopicAnalytics carries one models.AnalyticsMessage per persisted event.
	TopicAnalytics = "analytics"
	// TopicAggregate carries the minute bucket an event just updated.
	TopicAggregate = "aggregate"
	// TopicAggregateInit carries the full snapshot sent once per subscriber.
	TopicAggregateInit = "aggregate-init"
)
