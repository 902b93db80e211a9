package models

import "github.com/smazurov/ntv2node/pkg/ntv2"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

type DeviceInfoResponse struct {
	Body ntv2.DeviceInfo
}

// ChannelPath addresses one frame store.
type ChannelPath struct {
	Channel int `path:"channel" minimum:"1" maximum:"8" example:"1" doc:"Frame store number"`
}

// ID returns the zero-based channel.
func (p ChannelPath) ID() ntv2.Channel { return ntv2.Channel(p.Channel - 1) }

// Channel status models
type ChannelStatusData struct {
	Channel         int      `json:"channel" example:"1" doc:"Frame store number"`
	Crosspoint      string   `json:"crosspoint" example:"ch1" doc:"Active crosspoint"`
	State           string   `json:"state" example:"Running" doc:"AutoCirculate state"`
	StartFrame      int32    `json:"start_frame" example:"0" doc:"First frame of the ring"`
	EndFrame        int32    `json:"end_frame" example:"6" doc:"Last frame of the ring"`
	ActiveFrame     int32    `json:"active_frame" example:"3" doc:"Frame on air or being captured"`
	BufferLevel     uint32   `json:"buffer_level" example:"2" doc:"Frames queued"`
	FramesProcessed uint32   `json:"frames_processed" example:"120" doc:"Frames transferred"`
	FramesDropped   uint32   `json:"frames_dropped" example:"0" doc:"Frames dropped"`
	AudioSystem     int      `json:"audio_system" example:"-1" doc:"Bound audio system (1-8), -1 for none"`
	Options         []string `json:"options" doc:"Enabled AutoCirculate options"`
}

type ChannelStatusResponse struct {
	Body ChannelStatusData
}

type ChannelListData struct {
	Channels []ChannelStatusData `json:"channels" doc:"Status of every frame store"`
	Count    int                 `json:"count" example:"8" doc:"Number of frame stores"`
}

type ChannelListResponse struct {
	Body ChannelListData
}

// NewChannelStatus converts a device status.
func NewChannelStatus(st *ntv2.Status) ChannelStatusData {
	audio := -1
	if st.AudioSystem.IsValid() {
		audio = int(st.AudioSystem) + 1
	}
	options := st.OptionFlags.Names()
	if options == nil {
		options = []string{}
	}
	return ChannelStatusData{
		Channel:         int(st.Crosspoint.Channel()) + 1,
		Crosspoint:      st.Crosspoint.String(),
		State:           st.State.String(),
		StartFrame:      st.StartFrame,
		EndFrame:        st.EndFrame,
		ActiveFrame:     st.ActiveFrame,
		BufferLevel:     st.BufferLevel,
		FramesProcessed: st.FramesProcessed,
		FramesDropped:   st.FramesDropped,
		AudioSystem:     audio,
		Options:         options,
	}
}

// Frame stamp models
type FrameStampInput struct {
	ChannelPath
	Frame int32 `path:"frame" minimum:"0" example:"3" doc:"Frame buffer number"`
}

type FrameStampData struct {
	Frame             uint32            `json:"frame" example:"3" doc:"Frame buffer number"`
	FrameTime         int64             `json:"frame_time" doc:"Host time the frame was captured or went on air (100ns units)"`
	AudioClockTime    uint64            `json:"audio_clock_time" doc:"Audio clock when the frame was stamped"`
	CurrentTime       int64             `json:"current_time" doc:"Host time of the query (100ns units)"`
	CurrentFrame      uint32            `json:"current_frame" example:"4" doc:"Active frame at query time"`
	CurrentFrameTime  int64             `json:"current_frame_time" doc:"Stamp time of the active frame"`
	CurrentReps       uint32            `json:"current_reps" example:"0" doc:"Repeats of the active frame"`
	CurrentFieldCount uint32            `json:"current_field_count" example:"0" doc:"Field of the active frame"`
	CurrentTimecode   string            `json:"current_timecode" example:"00:00:01:12" doc:"Timecode of the active frame"`
	Timecodes         map[string]string `json:"timecodes" doc:"Valid input timecodes by index"`
}

type FrameStampResponse struct {
	Body FrameStampData
}

// NewFrameStamp converts a device frame stamp.
func NewFrameStamp(fs *ntv2.FrameStamp) FrameStampData {
	data := FrameStampData{
		Frame:             fs.Frame,
		FrameTime:         fs.FrameTime,
		AudioClockTime:    fs.AudioClockTimeStamp,
		CurrentTime:       fs.CurrentTime,
		CurrentFrame:      fs.CurrentFrame,
		CurrentFrameTime:  fs.CurrentFrameTime,
		CurrentReps:       fs.CurrentReps,
		CurrentFieldCount: fs.CurrentFieldCount,
		Timecodes:         map[string]string{},
	}
	if fs.CurrentRP188.IsValid() {
		data.CurrentTimecode = fs.CurrentRP188.String()
	}
	if tcs, ok := fs.GetInputTimeCodes(); ok {
		for i, tc := range tcs {
			if tc.IsValid() {
				data.Timecodes[ntv2.TCIndex(i).String()] = tc.String()
			}
		}
	}
	return data
}

// Command models
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

type InitRequestData struct {
	Direction   Direction `json:"direction" enum:"input,output" example:"output" doc:"Capture (input) or playout (output)"`
	FrameCount  int       `json:"frame_count,omitempty" minimum:"0" example:"7" doc:"Frames to allocate when no explicit range is given"`
	StartFrame  int32     `json:"start_frame,omitempty" minimum:"0" example:"0" doc:"First frame of an explicit range"`
	EndFrame    int32     `json:"end_frame,omitempty" minimum:"0" example:"0" doc:"Last frame of an explicit range"`
	AudioSystem int       `json:"audio_system,omitempty" minimum:"0" maximum:"8" example:"0" doc:"Audio system 1-8, 0 for none"`
	NumChannels int       `json:"num_channels,omitempty" minimum:"0" maximum:"8" example:"1" doc:"Ganged frame stores"`
	Options     []string  `json:"options,omitempty" example:"[\"rp188\"]" doc:"AutoCirculate options"`
}

type InitRequest struct {
	ChannelPath
	Body InitRequestData
}

type CommandName string

const (
	CommandStart       CommandName = "start"
	CommandStop        CommandName = "stop"
	CommandAbort       CommandName = "abort"
	CommandPause       CommandName = "pause"
	CommandResume      CommandName = "resume"
	CommandFlush       CommandName = "flush"
	CommandPreroll     CommandName = "preroll"
	CommandActiveFrame CommandName = "active-frame"
)

type CommandRequestData struct {
	Command        CommandName `json:"command" enum:"start,stop,abort,pause,resume,flush,preroll,active-frame" example:"start" doc:"AutoCirculate command"`
	StartTime      int64       `json:"start_time,omitempty" example:"0" doc:"Host time to start at (start only)"`
	Frame          *int32      `json:"frame,omitempty" example:"0" doc:"Pause frame (pause, omit to pause at once) or frame to go on air (active-frame)"`
	Frames         int32       `json:"frames,omitempty" example:"2" doc:"Frames to add to the preroll count (preroll)"`
	ClearDropCount bool        `json:"clear_drop_count,omitempty" example:"false" doc:"Reset the drop counter (resume, flush)"`
}

type CommandRequest struct {
	ChannelPath
	Body CommandRequestData
}

// Register models
type RegisterReadRequest struct {
	Body struct {
		Registers []uint32 `json:"registers" minItems:"1" maxItems:"1024" example:"[0,48,50]" doc:"Register numbers to read"`
	}
}

type RegisterValue struct {
	Num   uint32 `json:"num" example:"50" doc:"Register number"`
	Value uint32 `json:"value" example:"268518400" doc:"Register value"`
}

type RegisterReadData struct {
	Values  []RegisterValue `json:"values" doc:"Registers read, in request order"`
	Missing []uint32        `json:"missing" doc:"Registers the device could not read"`
}

type RegisterReadResponse struct {
	Body RegisterReadData
}

type RegisterWrite struct {
	Num   uint32 `json:"num" example:"100" doc:"Register number"`
	Value uint32 `json:"value" example:"171" doc:"Value before shifting"`
	Mask  uint32 `json:"mask,omitempty" example:"4294967295" doc:"Bits to change, 0 for all"`
	Shift uint32 `json:"shift,omitempty" maximum:"31" example:"0" doc:"Left shift applied to value"`
}

type RegisterWriteRequest struct {
	Body struct {
		Writes []RegisterWrite `json:"writes" minItems:"1" maxItems:"1024" doc:"Register writes"`
	}
}

type RegisterWriteData struct {
	Written  int             `json:"written" example:"2" doc:"Writes applied"`
	Rejected []RegisterWrite `json:"rejected" doc:"Writes the device rejected"`
}

type RegisterWriteResponse struct {
	Body RegisterWriteData
}

// Log models
type LogEntryData struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Sequence number"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"device" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsInput struct {
	Module string `query:"module" example:"device" doc:"Only entries from this module"`
	Limit  int    `query:"limit" minimum:"0" default:"200" example:"200" doc:"Most recent entries to return, 0 for all"`
}

type LogsResponse struct {
	Body struct {
		Entries []LogEntryData `json:"entries" doc:"Buffered log entries, oldest first"`
		Count   int            `json:"count" example:"200" doc:"Entries returned"`
	}
}
