package entity

// ProcessingRequest is the inbound message from the processing queue. It is
// immutable once dequeued; the destination key is computed upstream from the
// source key and effect id, so reprocessing a redelivered request overwrites
// the same object.
type ProcessingRequest struct {
	SourceBucket   string         `json:"source_bucket"`
	SourceKey      string         `json:"source_key"`
	DestinationKey string         `json:"destination_key"`
	EffectID       string         `json:"effect_id"`
	Params         map[string]any `json:"params,omitempty"`
	NotifyEmail    string         `json:"notify_email,omitempty"`
}

// Validate checks the fields the worker cannot proceed without. A request
// failing this is a permanent error; there is nothing a retry can fix.
func (r *ProcessingRequest) Validate() error {
	switch {
	case r.SourceBucket == "":
		return Permanent("request missing source_bucket")
	case r.SourceKey == "":
		return Permanent("request missing source_key")
	case r.DestinationKey == "":
		return Permanent("request missing destination_key")
	case r.EffectID == "":
		return Permanent("request missing effect_id")
	}
	return nil
}

// MediaInfo describes a probed source video.
type MediaInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64
}
