package flex

// Object is the view of a node handed to the Lua process_node callback.
type Object struct {
	ID        int64
	Version   int32
	Changeset int64
	UID       int32
	User      string
	Lat       float64
	Lon       float64
	Tags      map[string]string
}

// Tag returns the value of a tag, or empty string if not present
func (o *Object) Tag(key string) string {
	return o.Tags[key]
}

// HasTag checks if the object has a specific tag
func (o *Object) HasTag(key string) bool {
	_, ok := o.Tags[key]
	return ok
}

// HasAnyTag checks if the object has at least one of the given tags
func (o *Object) HasAnyTag(keys ...string) bool {
	for _, key := range keys {
		if _, ok := o.Tags[key]; ok {
			return true
		}
	}
	return false
}

// TagCount returns the number of tags
func (o *Object) TagCount() int {
	return len(o.Tags)
}
