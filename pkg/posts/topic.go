package posts

import "strings"

// Topic partitions submission records. The set is closed.
type Topic string

const (
	TopicGeneral       Topic = "general"
	TopicBeauty        Topic = "beauty"
	TopicFood          Topic = "food"
	TopicTravel        Topic = "travel"
	TopicSports        Topic = "sports"
	TopicEntertainment Topic = "entertainment"
)

// Topics lists every valid topic in display order.
var Topics = []Topic{
	TopicGeneral,
	TopicBeauty,
	TopicFood,
	TopicTravel,
	TopicSports,
	TopicEntertainment,
}

func (t Topic) Valid() bool {
	switch t {
	case TopicGeneral, TopicBeauty, TopicFood, TopicTravel, TopicSports, TopicEntertainment:
		return true
	}
	return false
}

func (t Topic) String() string { return string(t) }

// ParseTopic accepts only exact topic names.
func ParseTopic(raw string) (Topic, error) {
	t := Topic(raw)
	if !t.Valid() {
		return "", ErrInvalidTopic
	}
	return t, nil
}

// AllowedTopics renders the topic set the way it is reported to clients.
func AllowedTopics() string {
	names := make([]string, len(Topics))
	for i, t := range Topics {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

// Mode is the engagement mode requested for a submission.
type Mode string

const (
	ModeLight  Mode = "light"
	ModeNormal Mode = "normal"
	ModeHeavy  Mode = "heavy"

	DefaultMode = ModeNormal
)

func (m Mode) Valid() bool {
	switch m {
	case ModeLight, ModeNormal, ModeHeavy:
		return true
	}
	return false
}

// NormalizeMode returns raw as a Mode, or DefaultMode when raw is absent or unknown.
func NormalizeMode(raw string) Mode {
	m := Mode(raw)
	if m.Valid() {
		return m
	}
	return DefaultMode
}
