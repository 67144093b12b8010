package bounty

import (
	"fmt"

	"xdao.co/gep/gep"
	"xdao.co/gep/transport"
)

// parseTasks accepts a bare list, {"tasks":[...]} or
// {"payload":{"tasks":[...]}}. Entries without a task id are skipped.
func parseTasks(resp gep.Response) ([]Task, error) {
	items, ok := resp.List("tasks", "bounties")
	if !ok {
		return nil, nil
	}

	out := make([]Task, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, &transport.Error{
				Kind:     transport.KindMalformedResponse,
				Op:       gep.Fetch,
				Message:  fmt.Sprintf("task %d is %T, not an object", i, it),
				Response: resp,
			}
		}
		id := stringField(m, "task_id", "id")
		if id == "" {
			continue
		}
		t := Task{
			ID:    id,
			Title: stringField(m, "title", "name", "description"),
			State: Available,
			Raw:   m,
		}
		for _, k := range []string{"reward", "bounty", "credits"} {
			if n, ok := gep.AsInt(m[k]); ok {
				t.Reward = n
				break
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
