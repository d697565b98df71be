package envelope

import "sort"

// Topic discriminates inbound envelopes.
type Topic string

const (
	TopicToken        Topic = "TOKEN"
	TopicQRRequest    Topic = "QR_REQUEST"
	TopicSaveData     Topic = "SAVE_LOCAL_DATA"
	TopicGetData      Topic = "GET_LOCAL_DATA"
	TopicAlert        Topic = "ALERT"
	TopicConfirmAlert Topic = "CONFIRM_ALERT"
	TopicDownload     Topic = "download_file"
	TopicUpload       Topic = "upload_file"
)

func (t Topic) String() string { return string(t) }

// Outbound callback names.
const (
	ResolveToken        = "resolveToken"
	RejectToken         = "rejectToken"
	ResolveQRCode       = "resolveQrCode"
	RejectQRCode        = "rejectQrCode"
	ResolveSaveData     = "resolveSaveLocalData"
	RejectSaveData      = "rejectSaveLocalData"
	ResolveGetData      = "resolveGetLocalData"
	RejectGetData       = "rejectGetLocalData"
	RejectAlert         = "rejectAlert"
	ResolveConfirmAlert = "resolveConfirmAlert"
	RejectConfirmAlert  = "rejectConfirmAlert"
	ResolveDownload     = "resolveDownload"
	RejectDownload      = "rejectDownload"
	ResolveUpload       = "resolveUpload"
	RejectUpload        = "rejectUpload"
)

// KnownCallbacks lists every callback the host may invoke. A surface is
// probed for these once per load.
func KnownCallbacks() []string {
	return []string{
		ResolveToken, RejectToken,
		ResolveQRCode, RejectQRCode,
		ResolveSaveData, RejectSaveData,
		ResolveGetData, RejectGetData,
		RejectAlert,
		ResolveConfirmAlert, RejectConfirmAlert,
		ResolveDownload, RejectDownload,
		ResolveUpload, RejectUpload,
	}
}

// CallbackSet is the set of callbacks a loaded surface has defined. It is
// established once per load and never re-probed.
type CallbackSet struct {
	names map[string]struct{}
}

// NewCallbackSet builds a set from the defined callback names.
func NewCallbackSet(names ...string) CallbackSet {
	set := CallbackSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		set.names[n] = struct{}{}
	}
	return set
}

// Has reports whether the surface defined name.
func (s CallbackSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of defined callbacks.
func (s CallbackSet) Len() int {
	return len(s.names)
}

// Names returns the defined callbacks, sorted.
func (s CallbackSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
