package bus

import "github.com/next-trace/scg-cqrs/stream"

// Saga maps the event stream to a stream of derived commands.
// Sagas are plain functions; they hold no router state and do not know each other.
//
//	func dropLoot(events stream.Source[bus.Event]) stream.Source[bus.Command] {
//		kills := stream.OfType[DragonKilled](events)
//		return stream.Map(kills, func(e DragonKilled) bus.Command {
//			return DropItem{HeroID: e.HeroID, ItemID: lootID}
//		})
//	}
type Saga func(events stream.Source[Event]) stream.Source[Command]
