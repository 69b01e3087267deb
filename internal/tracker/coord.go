package tracker

import "github.com/VoiceLayer/dispatch/internal/types"

// coord is the comparable map-key form of a (type, endpoint) pair.
// types.Endpoint embeds a []byte and so is not itself comparable; coord
// flattens it to comparable fields.
type coord struct {
	typ         types.ServiceType
	nodeID      string
	localHandle string
}

func makeCoord(typ types.ServiceType, e types.Endpoint) coord {
	return coord{typ: typ, nodeID: e.NodeID, localHandle: string(e.LocalHandle)}
}

func (c coord) endpoint() types.Endpoint {
	return types.Endpoint{NodeID: c.nodeID, LocalHandle: []byte(c.localHandle)}
}
