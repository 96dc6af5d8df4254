package model

// DownloadTarget is shared read-only by every worker of a run
type DownloadTarget struct {
	Dir             string // modpack directory, artifacts go to Dir/mods
	PlatformVersion string // game version, e.g. "1.20.1"
}

// Modpack represents the modpack.json manifest
type Modpack struct {
	Name     string     `json:"name"`
	Version  string     `json:"version"`
	Loader   string     `json:"loader"` // launcher version id of the installed loader
	Folder   string     `json:"folder"`
	Target   string     `json:"target"` // game version
	Fabric   string     `json:"fabric"` // fabric loader version
	Mods     []string   `json:"mods"`
	External []External `json:"external,omitempty"`
}

// External is an extra file downloaded after all mods
type External struct {
	URL     string `json:"url"`
	File    string `json:"file"`              // path relative to the modpack folder
	Extract string `json:"extract,omitempty"` // extract .zip archives into this folder
}
