package event

import "github.com/l1jgo/ecsid/internal/core/ecs"

// EntitiesSpawned is emitted by a spawner after its batch was handed out.
type EntitiesSpawned struct {
	Spawner  string
	Entities []ecs.EntityID
}

// EntitiesDespawned is emitted after the destroy queue was flushed. Component
// storage outside the registry uses it to release rows keyed by these ids.
type EntitiesDespawned struct {
	Entities []ecs.EntityID
}

// DespawnRejected reports a queued despawn the allocator refused, typically a
// double despawn.
type DespawnRejected struct {
	Err error
}
