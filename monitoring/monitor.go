// Package monitoring turns a ledger into a web server that reports its
// accounting state and lets an operator trigger compaction from outside.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/deeptree/echosim/memledger"
)

// Monitor exposes a ledger over HTTP.
type Monitor struct {
	ledger      *memledger.Ledger
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitoring URL in the default
// browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterLedger registers the ledger to be monitored.
func (m *Monitor) RegisterLedger(l *memledger.Ledger) {
	m.ledger = l
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()
	r.HandleFunc("/api/stats", m.reportStats)
	r.HandleFunc("/api/ledger", m.serializeLedger)
	r.HandleFunc("/api/record/{id}", m.serializeRecord)
	r.HandleFunc("/api/defragment", m.defragment).Methods(http.MethodPost)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring ledger with %s\n", url)

	go func() {
		err = http.Serve(listener, r)
		dieOnErr(err)
	}()

	if m.openBrowser {
		err = browser.OpenURL(url + "/api/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open browser: %s\n", err)
		}
	}
}

func (m *Monitor) reportStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := m.ledger.GetStats()
	if m.rejectTerminated(w, err) {
		return
	}

	bytes, err := json.Marshal(stats)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) serializeLedger(w http.ResponseWriter, _ *http.Request) {
	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.ledger)
	serializer.SetMaxDepth(1)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) serializeRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	records, err := m.ledger.Snapshot()
	if m.rejectTerminated(w, err) {
		return
	}

	for _, rec := range records {
		if rec.ID != id {
			continue
		}

		serializer := goseth.NewSerializer()
		serializer.SetRoot(rec)
		serializer.SetMaxDepth(2)

		err := serializer.Serialize(w)
		dieOnErr(err)

		return
	}

	w.WriteHeader(http.StatusNotFound)
	_, err = w.Write([]byte("Record not found"))
	dieOnErr(err)
}

func (m *Monitor) defragment(w http.ResponseWriter, _ *http.Request) {
	stats, err := m.ledger.Defragment()
	if m.rejectTerminated(w, err) {
		return
	}

	bytes, err := json.Marshal(stats)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

// rejectTerminated answers with 410 Gone when the ledger has been destroyed.
func (m *Monitor) rejectTerminated(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, memledger.ErrLedgerTerminated) {
		w.WriteHeader(http.StatusGone)
		_, writeErr := w.Write([]byte("Ledger terminated"))
		dieOnErr(writeErr)

		return true
	}

	dieOnErr(err)

	return true
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
