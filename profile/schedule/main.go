// Profiling:
// go build ./profile/schedule
// go tool pprof -http=":8000" -nodefraction=0.001 ./schedule cpu.pprof

package main

import (
	"github.com/karakuri-ecs/karakuri"

	"github.com/pkg/profile"
)

type position struct {
	X, Y float64
}

type velocity struct {
	X, Y float64
}

type health struct {
	HP int32
}

func main() {
	iters := 10000
	entities := 100000
	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(iters, entities)
	p.Stop()
}

func run(iters, numEntities int) {
	w := karakuri.NewWorld(numEntities)
	posID := karakuri.RegisterComponent[position](w.Components())
	velID := karakuri.RegisterComponent[velocity](w.Components())
	hpID := karakuri.RegisterComponent[health](w.Components())

	for i := 0; i < numEntities; i++ {
		karakuri.Spawn3(w, position{}, velocity{X: 1, Y: 1}, health{HP: 100})
	}

	move := karakuri.NewSystem("move", func(ctx *karakuri.SystemContext) {
		q := karakuri.NewQuery2[position, velocity](ctx.World)
		for q.Next() {
			pos, vel := q.Get()
			pos.X += vel.X
			pos.Y += vel.Y
		}
	}).Writes(posID).Reads(velID)

	decay := karakuri.NewSystem("decay", func(ctx *karakuri.SystemContext) {
		q := karakuri.NewQuery[health](ctx.World)
		for q.Next() {
			h := q.Get()
			if h.HP > 0 {
				h.HP--
			}
		}
	}).Writes(hpID)

	sched := karakuri.NewSchedule("profile",
		karakuri.WithExecutor(karakuri.ExecutorMultiThreaded),
		karakuri.WithAmbiguityPolicy(karakuri.AmbiguityIgnore))
	sched.AddSystems(move, decay)

	for it := 0; it < iters; it++ {
		if err := sched.Run(w); err != nil {
			panic(err)
		}
	}
}
