package monitoring

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sarchlab/tilesim/mem/coherence"
	"github.com/sarchlab/tilesim/mem/coherence/dirctrl"
	"github.com/sarchlab/tilesim/mem/coherence/directory"
)

type entryRsp struct {
	Address   string             `json:"address"`
	State     string             `json:"state"`
	Owner     coherence.TileID   `json:"owner"`
	Sharers   []coherence.TileID `json:"sharers"`
	Broadcast bool               `json:"broadcast"`
	Retiring  bool               `json:"retiring"`
	Pending   int                `json:"pending"`
}

type directoryRsp struct {
	Name           string           `json:"name"`
	Home           coherence.TileID `json:"home"`
	ProtocolStats  dirctrl.Stats    `json:"protocol_stats"`
	DirectoryStats directory.Stats  `json:"directory_stats"`
	NumPending     int              `json:"num_pending"`
	Entries        []entryRsp       `json:"entries"`
}

// listDirectory reports the counters and the entries of a directory
// controller. The entries can be limited with the limit and offset query
// parameters.
func (m *Monitor) listDirectory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	d, ok := m.directories[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Directory %s not found", name)
		return
	}

	limit, err := intParam(r, "limit")
	if err == nil {
		var offset int
		offset, err = intParam(r, "offset")
		if err == nil {
			writeJSON(w, snapshotDirectory(d, limit, offset))
			return
		}
	}

	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "Error: %s", err)
}

func snapshotDirectory(d *dirctrl.Comp, limit, offset int) directoryRsp {
	e := d.Engine()
	queue := e.Queue()

	rsp := directoryRsp{
		Name:           d.Name(),
		Home:           e.Home(),
		ProtocolStats:  e.Stats(),
		DirectoryStats: e.Directory().Stats(),
		NumPending:     queue.Len(),
		Entries:        []entryRsp{},
	}

	entries := e.Directory().Entries()
	if offset > len(entries) {
		offset = len(entries)
	}

	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	for _, entry := range entries {
		all, ids := entry.Sharers.SharersList()
		rsp.Entries = append(rsp.Entries, entryRsp{
			Address:   fmt.Sprintf("0x%x", entry.Address),
			State:     entry.State.String(),
			Owner:     entry.Owner,
			Sharers:   ids,
			Broadcast: all,
			Retiring:  entry.Retiring,
			Pending:   queue.Count(entry.Address),
		})
	}

	return rsp
}
