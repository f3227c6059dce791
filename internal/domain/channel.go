package domain

// Channel represents the YouTube channel that uploaded a video
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetDisplayName returns the channel name or empty string
func (c *Channel) GetDisplayName() string {
	if c == nil {
		return ""
	}
	return c.Name
}
