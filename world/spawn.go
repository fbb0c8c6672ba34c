package world

import (
	"fmt"
	"math/rand"

	"torchverso/models"
)

const citizenPersona = "You are a friendly robot citizen of Torchverso, a neon city. Answer in one or two short sentences."

// SpawnCitizens adds count wandering NPCs near the origin and a pet dog.
// Positions and wander patterns derive from seed.
func SpawnCitizens(es *Entities, count int, seed int64, brain Brain) error {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < count; i++ {
		pos := models.Vec3{X: (rng.Float64() - 0.5) * 20, Z: (rng.Float64() - 0.5) * 20}
		id := fmt.Sprintf("npc-%d", i)
		npc := NewNPC(id, fmt.Sprintf("Citizen %d", i+1), citizenPersona, pos, rng.Int63(), brain)
		if err := es.Add(npc); err != nil {
			return err
		}
	}
	return es.Add(NewDog("dog-0", models.Vec3{X: 2, Z: 2}))
}
