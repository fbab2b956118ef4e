package dto

// RawRecord is one untyped object from the remote API. Field names vary
// between API generations, see the normalization tables in services/mailsync.
type RawRecord map[string]interface{}

// Endpoint addresses the remote API for one call. Authorization is the full
// header value.
type Endpoint struct {
	APIBase       string
	Authorization string
}

// MessageUpdate is the PUT /v1/messages/{id} body. Nil fields are omitted;
// a non-nil empty Flags clears all flags.
type MessageUpdate struct {
	Flags  *[]string `json:"flags,omitempty"`
	Folder *string   `json:"folder,omitempty"`
	Labels *[]string `json:"labels,omitempty"`
}

func FlagsUpdate(flags []string) MessageUpdate {
	if flags == nil {
		flags = []string{}
	}
	return MessageUpdate{Flags: &flags}
}

func MoveUpdate(folder string) MessageUpdate {
	return MessageUpdate{Folder: &folder}
}

func LabelsUpdate(labels []string) MessageUpdate {
	if labels == nil {
		labels = []string{}
	}
	return MessageUpdate{Labels: &labels}
}
