package didl

import (
	"strings"
	"testing"

	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

func scanString(t *testing.T, body, parentID string, opts Options) dlna.BrowseResult {
	t.Helper()
	result, err := Scan(strings.NewReader(body), parentID, opts)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return result
}

func TestScanContainer(t *testing.T) {
	body := `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">` +
		`<container id="64" parentID="0" childCount="5"><dc:title>Music</dc:title></container>` +
		`</DIDL-Lite>`
	result := scanString(t, body, "0", Options{MaxCount: 10})
	if len(result.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(result.Objects))
	}
	obj := result.Objects[0]
	if !obj.IsDirectory || obj.ID != "64" || obj.ParentID != "0" || obj.Size != 5 || obj.SizeMissing || obj.Name != "Music" {
		t.Fatalf("unexpected container: %+v", obj)
	}
	if obj.Searchable {
		t.Fatalf("searchable must default to false")
	}
	if result.Truncated {
		t.Fatalf("result must not be truncated")
	}
}

func TestScanContainerMissingChildCount(t *testing.T) {
	body := `<container id="64" parentID="0"><dc:title>Music</dc:title></container>`
	obj := scanString(t, body, "0", Options{MaxCount: 10}).Objects[0]
	if obj.Size != 0 || !obj.SizeMissing {
		t.Fatalf("missing childCount must set SizeMissing: %+v", obj)
	}
}

func TestScanContainerSearchable(t *testing.T) {
	body := `<container id="1" parentID="0" searchable="1"><dc:title>A</dc:title></container>` +
		`<container id="2" parentID="0"><dc:title>B</dc:title></container>`
	result := scanString(t, body, "0", Options{MaxCount: 10, AssumeSearchable: true})
	if !result.Objects[0].Searchable || !result.Objects[1].Searchable {
		t.Fatalf("assume-searchable default not applied: %+v", result.Objects)
	}
	result = scanString(t, body, "0", Options{MaxCount: 10})
	if !result.Objects[0].Searchable || result.Objects[1].Searchable {
		t.Fatalf("searchable defaults wrong: %+v", result.Objects)
	}
}

func TestScanItemWithResource(t *testing.T) {
	body := `<item id="f1" parentID="64">` +
		`<dc:title>Song &amp; Dance</dc:title>` +
		`<upnp:class>object.item.audioItem.musicTrack</upnp:class>` +
		`<upnp:artist>Artist</upnp:artist><upnp:album>Album</upnp:album>` +
		`<upnp:albumArtURI>http://10.0.0.9:8200/art/f1.jpg</upnp:albumArtURI>` +
		`<res size="1234" sampleFrequency="44100" protocolInfo="http-get:*:audio/mpeg:*">` +
		`http://10.0.0.9:8201/media/f1.mp3</res></item>`
	obj := scanString(t, body, "64", Options{MaxCount: 10}).Objects[0]
	if obj.IsDirectory {
		t.Fatalf("item marked directory")
	}
	if obj.Size != 1234 || obj.SizeMissing {
		t.Fatalf("size: %+v", obj)
	}
	if obj.Bitrate != 0 {
		t.Fatalf("missing bitrate must stay zero, got %d", obj.Bitrate)
	}
	if obj.SampleFrequency != 44100 {
		t.Fatalf("sample frequency: %d", obj.SampleFrequency)
	}
	if obj.Name != "Song & Dance" {
		t.Fatalf("name: %q", obj.Name)
	}
	if obj.FileType != dlna.FileTypeAudio {
		t.Fatalf("file type: %v", obj.FileType)
	}
	if obj.Artist != "Artist" || obj.Album != "Album" {
		t.Fatalf("music metadata: %+v", obj)
	}
	if obj.DownloadIP != "10.0.0.9" || obj.DownloadPort != 8201 || obj.URI != "/media/f1.mp3" {
		t.Fatalf("download locator: %+v", obj)
	}
	if obj.AlbumArtURI != "http://10.0.0.9:8200/art/f1.jpg" {
		t.Fatalf("album art: %q", obj.AlbumArtURI)
	}
}

func TestScanClassifiesByMimeHint(t *testing.T) {
	body := `<item id="v1" parentID="0"><dc:title>clip</dc:title>` +
		`<res size="9" protocolInfo="http-get:*:video/mp4:*">http://h:1/v.mp4</res></item>`
	obj := scanString(t, body, "0", Options{MaxCount: 10}).Objects[0]
	if obj.FileType != dlna.FileTypeVideo {
		t.Fatalf("file type: %v", obj.FileType)
	}
}

func TestScanZeroSizeSuppression(t *testing.T) {
	body := `<item id="e1" parentID="0"><dc:title>empty</dc:title>` +
		`<res size="0">http://h:1/e</res></item>` +
		`<item id="m1" parentID="0"><dc:title>nosize</dc:title>` +
		`<res>http://h:1/m</res></item>`
	result := scanString(t, body, "0", Options{MaxCount: 10})
	if len(result.Objects) != 1 || result.Objects[0].ID != "m1" {
		t.Fatalf("zero-size item not suppressed (missing-size item must stay): %+v", result.Objects)
	}
	result = scanString(t, body, "0", Options{MaxCount: 10, ShowEmpty: true})
	if len(result.Objects) != 2 {
		t.Fatalf("show-empty must keep zero-size items: %+v", result.Objects)
	}
}

func TestScanParentIDMismatch(t *testing.T) {
	body := `<container id="10" parentID="99" childCount="1"><dc:title>odd</dc:title></container>`
	result := scanString(t, body, "0", Options{MaxCount: 10})
	if len(result.Objects) != 1 || result.Objects[0].ParentID != "99" {
		t.Fatalf("tolerant mode must keep reported parentID: %+v", result.Objects)
	}
	result = scanString(t, body, "0", Options{MaxCount: 10, StrictParentID: true})
	if len(result.Objects) != 0 {
		t.Fatalf("strict mode must drop mismatched entry: %+v", result.Objects)
	}
}

func TestScanStopsAtMaxCount(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(`<container id="c` + string(rune('0'+i)) + `" parentID="0" childCount="1"><dc:title>d</dc:title></container>`)
	}
	result := scanString(t, sb.String(), "0", Options{MaxCount: 3})
	if len(result.Objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(result.Objects))
	}
	if !result.Truncated {
		t.Fatalf("truncation must be signaled")
	}
}

func TestScanUnterminatedElementFails(t *testing.T) {
	body := `<container id="1" parentID="0" childCount="2"><dc:title>ok</dc:title></container>` +
		`<item id="2" parentID="0"><dc:title>broken`
	result, err := Scan(strings.NewReader(body), "0", Options{MaxCount: 10})
	if !dlna.IsProtocol(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if len(result.Objects) != 1 {
		t.Fatalf("partial result must be reported: %+v", result.Objects)
	}
}

func TestScanIgnoresUnknownElements(t *testing.T) {
	body := `<desc>noise</desc><container id="1" parentID="0" childCount="0"><dc:title>d</dc:title></container><other/>`
	result := scanString(t, body, "0", Options{MaxCount: 10})
	if len(result.Objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(result.Objects))
	}
}

func TestScanSkipsEntriesWithoutID(t *testing.T) {
	body := `<container parentID="0" childCount="1"><dc:title>anon</dc:title></container>`
	result := scanString(t, body, "0", Options{MaxCount: 10})
	if len(result.Objects) != 0 {
		t.Fatalf("entry without id must be skipped: %+v", result.Objects)
	}
}
