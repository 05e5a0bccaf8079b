// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
	"github.com/karakuri-ecs/karakuri"

	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	count := 50
	iters := 10000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for r := 0; r < rounds; r++ {
		w := karakuri.NewWorld(numEntities)
		query := karakuri.NewQuery2[comp1, comp2](w)

		for it := 0; it < iters; it++ {
			for i := 0; i < numEntities; i++ {
				karakuri.Spawn2(w, comp1{}, comp2{V: 1, W: 2})
			}
			entities := []karakuri.Entity{}
			query.Reset()
			for query.Next() {
				entities = append(entities, query.Entity())
				c1, c2 := query.Get()
				c1.V += c2.V
				c1.W += c2.W
			}
			for _, e := range entities {
				w.Despawn(e)
			}
		}
	}
}
