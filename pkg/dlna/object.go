// Package dlna holds the shared data model for the upnpcat engine:
// media servers, browsed media objects and the error taxonomy.
package dlna

// FileType classifies the payload of a browsed item.
type FileType int

const (
	FileTypeOther FileType = iota
	FileTypeAudio
	FileTypeImage
	FileTypeVideo
)

// String returns the lower-case type name.
func (t FileType) String() string {
	switch t {
	case FileTypeAudio:
		return "audio"
	case FileTypeImage:
		return "image"
	case FileTypeVideo:
		return "video"
	default:
		return "other"
	}
}

// ServiceClass selects the SSDP search target.
type ServiceClass int

const (
	// ClassMediaServer discovers DLNA media servers (DMS).
	ClassMediaServer ServiceClass = iota
	// ClassMediaRenderer discovers DLNA media renderers (DMR).
	ClassMediaRenderer
)

// URN returns the UPnP device URN for the class.
func (c ServiceClass) URN() string {
	if c == ClassMediaRenderer {
		return "urn:schemas-upnp-org:device:MediaRenderer:1"
	}
	return "urn:schemas-upnp-org:device:MediaServer:1"
}

func (c ServiceClass) String() string {
	if c == ClassMediaRenderer {
		return "MediaRenderer"
	}
	return "MediaServer"
}

// TransportAction names an AVTransport trigger.
type TransportAction int

const (
	ActionPlay TransportAction = iota
	ActionPause
	ActionStop
	ActionSetURI
)

func (a TransportAction) String() string {
	switch a {
	case ActionPlay:
		return "Play"
	case ActionPause:
		return "Pause"
	case ActionStop:
		return "Stop"
	case ActionSetURI:
		return "SetAVTransportURI"
	}
	return "unknown"
}

// MediaServer is one registered or discovered server. Entries are never
// mutated after creation, only replaced.
type MediaServer struct {
	IP           string `json:"ip"`
	Port         uint16 `json:"port"`
	Location     string `json:"location"`
	FriendlyName string `json:"friendlyName"`
	ControlURL   string `json:"controlUrl"`
}

// MediaObject is one browsed entry, directory or file.
//
// Size is the child count for directories and the byte size for files.
// SizeMissing marks entries whose server omitted the attribute; Size is
// then zero and must not be read as "empty". Bitrate and SampleFrequency
// are zero when the server did not report them.
type MediaObject struct {
	IsDirectory     bool     `json:"isDirectory"`
	Size            uint64   `json:"size"`
	SizeMissing     bool     `json:"sizeMissing"`
	Bitrate         uint32   `json:"bitrate,omitempty"`
	SampleFrequency uint32   `json:"sampleFrequency,omitempty"`
	Searchable      bool     `json:"searchable,omitempty"`
	FileType        FileType `json:"fileType"`
	ParentID        string   `json:"parentId"`
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Artist          string   `json:"artist,omitempty"`
	Album           string   `json:"album,omitempty"`
	URI             string   `json:"uri,omitempty"`
	DownloadIP      string   `json:"downloadIp,omitempty"`
	DownloadPort    uint16   `json:"downloadPort,omitempty"`
	AlbumArtURI     string   `json:"albumArtUri,omitempty"`
	IconURI         string   `json:"iconUri,omitempty"`
}

// BrowseResult is one page of browse output. Truncated is set when the
// scan stopped at the configured entry cap; callers advance the starting
// index to fetch the remainder.
type BrowseResult struct {
	Objects   []MediaObject `json:"objects"`
	Truncated bool          `json:"truncated"`
}
