package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/divyanshwrite/worldflow/internal/feed"
)

// Phoenix channel events used by the realtime server.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"

	heartbeatTopic = "phoenix"
	protocolVsn    = "1.0.0"
)

// message is one Phoenix frame in the JSON (vsn 1.0.0) serialization.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast       broadcastConfig  `json:"broadcast"`
	Presence        presenceConfig   `json:"presence"`
	PostgresChanges []postgresFilter `json:"postgres_changes"`
}

type broadcastConfig struct {
	Self bool `json:"self"`
}

type presenceConfig struct {
	Key string `json:"key"`
}

type postgresFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changesPayload struct {
	Data struct {
		Type      string          `json:"type"`
		Table     string          `json:"table"`
		Schema    string          `json:"schema"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

// channelTopic is the Phoenix topic a feed topic is joined on.
func channelTopic(t feed.Topic) string {
	return fmt.Sprintf("realtime:%s:%s", t.Table, t.Workspace)
}

// workspaceFilter restricts postgres_changes to one workspace.
func workspaceFilter(t feed.Topic) string {
	return "workspace_id=eq." + string(t.Workspace)
}

func newJoin(topic feed.Topic, schema, accessToken, ref string) message {
	payload, _ := json.Marshal(joinPayload{
		Config: joinConfig{
			PostgresChanges: []postgresFilter{{
				Event:  "*",
				Schema: schema,
				Table:  string(topic.Table),
				Filter: workspaceFilter(topic),
			}},
		},
		AccessToken: accessToken,
	})
	return message{Topic: channelTopic(topic), Event: eventJoin, Payload: payload, Ref: &ref}
}

func newLeave(topic feed.Topic, ref string) message {
	return message{Topic: channelTopic(topic), Event: eventLeave, Payload: json.RawMessage(`{}`), Ref: &ref}
}

func newHeartbeat(ref string) message {
	return message{Topic: heartbeatTopic, Event: eventHeartbeat, Payload: json.RawMessage(`{}`), Ref: &ref}
}

// toChange converts a postgres_changes payload into a feed change.
func toChange(table feed.Table, raw json.RawMessage) (feed.Change, error) {
	var p changesPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return feed.Change{}, err
	}
	if p.Data.Table != "" {
		table = feed.Table(p.Data.Table)
	}
	return feed.Change{
		Table:     table,
		Type:      feed.EventType(strings.ToUpper(p.Data.Type)),
		Record:    p.Data.Record,
		OldRecord: p.Data.OldRecord,
	}, nil
}

// socketURL appends the api key and protocol version to the websocket
// endpoint, e.g. wss://<project>.supabase.co/realtime/v1/websocket.
func socketURL(endpoint, apiKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	if apiKey != "" {
		q.Set("apikey", apiKey)
	}
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
