package action

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/flynn-ai/vox/internal/convo"
)

// Registry holds permanent actions, ephemeral groups and the forced queue.
// One mutex covers all three; it is never held while a handler runs.
type Registry struct {
	mu sync.Mutex

	actions map[string]Action

	// groups maps an ephemeral group id to its actions. Ids come from
	// nextGroupID and are never reused.
	groups      map[int][]Action
	nextGroupID int

	// forced holds action names in insertion order, without duplicates.
	forced []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
		groups:  make(map[int][]Action),
	}
}

// Register adds a permanent action. An action with the same name is
// replaced, which is reported through replaced.
func (r *Registry) Register(a Action) (replaced bool, err error) {
	if err := a.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.actions[a.Name]
	r.actions[a.Name] = a
	return replaced, nil
}

// Unregister removes a permanent action and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.actions[name]; !ok {
		return false
	}
	delete(r.actions, name)
	return true
}

// CreateEphemeralGroup stores a one-shot set of actions and returns its id.
// Invoking any member removes the whole group.
func (r *Registry) CreateEphemeralGroup(actions []Action) (int, error) {
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return 0, err
		}
	}
	group := slices.Clone(actions)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextGroupID
	r.nextGroupID++
	r.groups[id] = group
	return id, nil
}

// DiscardEphemeralGroup removes a group without invoking it.
func (r *Registry) DiscardEphemeralGroup(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[id]; !ok {
		return false
	}
	delete(r.groups, id)
	return true
}

// HasEphemeralGroup reports whether the group is still live.
func (r *Registry) HasEphemeralGroup(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.groups[id]
	return ok
}

// EnqueueForced requires the named action to be called before a response is
// accepted. It reports whether the name was newly added.
func (r *Registry) EnqueueForced(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.forced, name) {
		return false
	}
	r.forced = append(r.forced, name)
	return true
}

// Forced returns the forced queue in insertion order.
func (r *Registry) Forced() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.forced)
}

// MeetsForcedCriteria reports whether calls reference every forced action.
// An empty queue accepts anything. The queue itself is not modified.
func (r *Registry) MeetsForcedCriteria(calls []*convo.ToolCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.forced) == 0 {
		return true
	}

	requested := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		requested[c.Name()] = struct{}{}
	}
	for _, name := range r.forced {
		if _, ok := requested[name]; !ok {
			return false
		}
	}
	return true
}

// Lookup finds an action without consuming anything.
func (r *Registry) Lookup(name string) (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actions[name]; ok {
		return a, true
	}
	_, a, ok := r.findEphemeral(name)
	return a, ok
}

// Catalog returns every action the model may call right now: permanent
// actions plus members of live ephemeral groups, sorted by name. A
// permanent action shadows an ephemeral one with the same name.
func (r *Registry) Catalog() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName := make(map[string]Action, len(r.actions))
	for _, id := range r.groupIDs() {
		for _, a := range r.groups[id] {
			if _, seen := byName[a.Name]; !seen {
				byName[a.Name] = a
			}
		}
	}
	maps.Copy(byName, r.actions)

	out := slices.Collect(maps.Values(byName))
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// claim resolves name for dispatch. Permanent actions win; otherwise the
// first ephemeral group (lowest id) containing the name is consumed whole.
// A resolved name is dropped from the forced queue.
func (r *Registry) claim(name string) (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.actions[name]
	if !ok {
		var id int
		id, a, ok = r.findEphemeral(name)
		if !ok {
			return Action{}, false
		}
		delete(r.groups, id)
	}

	if i := slices.Index(r.forced, a.Name); i >= 0 {
		r.forced = slices.Delete(r.forced, i, i+1)
	}
	return a, true
}

// findEphemeral must be called with mu held.
func (r *Registry) findEphemeral(name string) (int, Action, bool) {
	for _, id := range r.groupIDs() {
		for _, a := range r.groups[id] {
			if a.Name == name {
				return id, a, true
			}
		}
	}
	return 0, Action{}, false
}

func (r *Registry) groupIDs() []int {
	return slices.Sorted(maps.Keys(r.groups))
}
