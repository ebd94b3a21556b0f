package recon

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// rawExcerptLimit bounds the raw text kept alongside a parse error.
const rawExcerptLimit = 1024

// Attrs holds the attributes of an nmap XML element verbatim.
type Attrs map[string]string

// Report is the structured form of nmap XML output.
type Report struct {
	ScanInfo   Attrs  `json:"scan_info,omitempty"`
	ParseError string `json:"parse_error,omitempty"`
	RawExcerpt string `json:"raw_excerpt,omitempty"`
	Hosts      []Host `json:"hosts"`
}

// Host is one scanned host.
type Host struct {
	Status    Attrs    `json:"status,omitempty"`
	OS        *OSInfo  `json:"os,omitempty"`
	Addresses []Attrs  `json:"addresses"`
	Hostnames []string `json:"hostnames"`
	Ports     []Port   `json:"ports"`
}

// Port is one port entry with its detected service.
type Port struct {
	State    Attrs    `json:"state,omitempty"`
	Service  Attrs    `json:"service,omitempty"`
	Protocol string   `json:"protocol"`
	Scripts  []Script `json:"scripts,omitempty"`
	Port     int      `json:"port"`
}

// Script is NSE script output attached to a port.
type Script struct {
	ID     string `json:"id"`
	Output string `json:"output,omitempty"`
}

// OSInfo lists OS fingerprint matches.
type OSInfo struct {
	Matches []Attrs `json:"matches"`
}

// OpenPorts returns the ports whose state is "open" across all hosts.
func (r *Report) OpenPorts() []Port {
	if r == nil {
		return nil
	}
	var out []Port
	for i := range r.Hosts {
		for _, p := range r.Hosts[i].Ports {
			if p.State["state"] == "open" {
				out = append(out, p)
			}
		}
	}
	return out
}

type xmlElement struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

type xmlScript struct {
	ID     string `xml:"id,attr"`
	Output string `xml:"output,attr"`
	Text   string `xml:",chardata"`
}

type xmlPort struct {
	Protocol string      `xml:"protocol,attr"`
	PortID   string      `xml:"portid,attr"`
	State    *xmlElement `xml:"state"`
	Service  *xmlElement `xml:"service"`
	Scripts  []xmlScript `xml:"script"`
}

type xmlHost struct {
	Status    *xmlElement  `xml:"status"`
	Addresses []xmlElement `xml:"address"`
	Hostnames []struct {
		Name string `xml:"name,attr"`
	} `xml:"hostnames>hostname"`
	Ports []xmlPort `xml:"ports>port"`
	OS    *struct {
		Matches []xmlElement `xml:"osmatch"`
	} `xml:"os"`
}

type xmlRun struct {
	XMLName  xml.Name    `xml:"nmaprun"`
	ScanInfo *xmlElement `xml:"scaninfo"`
	Hosts    []xmlHost   `xml:"host"`
}

// ParseXML converts nmap -oX output into a Report. Empty input yields nil; malformed
// input yields a Report carrying ParseError and an excerpt of the raw text.
func ParseXML(text string) *Report {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var run xmlRun
	if err := xml.Unmarshal([]byte(text), &run); err != nil {
		excerpt := text
		if len(excerpt) > rawExcerptLimit {
			excerpt = excerpt[:rawExcerptLimit]
		}
		return &Report{ParseError: err.Error(), RawExcerpt: excerpt, Hosts: []Host{}}
	}

	report := &Report{Hosts: make([]Host, 0, len(run.Hosts))}
	if run.ScanInfo != nil {
		report.ScanInfo = run.ScanInfo.attrs()
	}
	for i := range run.Hosts {
		report.Hosts = append(report.Hosts, convertHost(&run.Hosts[i]))
	}
	return report
}

func convertHost(xh *xmlHost) Host {
	h := Host{
		Addresses: make([]Attrs, 0, len(xh.Addresses)),
		Hostnames: make([]string, 0, len(xh.Hostnames)),
		Ports:     make([]Port, 0, len(xh.Ports)),
	}
	if xh.Status != nil {
		h.Status = xh.Status.attrs()
	}
	for i := range xh.Addresses {
		h.Addresses = append(h.Addresses, xh.Addresses[i].attrs())
	}
	for _, hn := range xh.Hostnames {
		h.Hostnames = append(h.Hostnames, hn.Name)
	}
	for i := range xh.Ports {
		h.Ports = append(h.Ports, convertPort(&xh.Ports[i]))
	}
	if xh.OS != nil {
		h.OS = &OSInfo{Matches: make([]Attrs, 0, len(xh.OS.Matches))}
		for i := range xh.OS.Matches {
			h.OS.Matches = append(h.OS.Matches, xh.OS.Matches[i].attrs())
		}
	}
	return h
}

func convertPort(xp *xmlPort) Port {
	// Unparseable port IDs become 0.
	n, _ := strconv.Atoi(xp.PortID)
	p := Port{Port: n, Protocol: xp.Protocol}
	if xp.State != nil {
		p.State = xp.State.attrs()
	}
	if xp.Service != nil {
		p.Service = xp.Service.attrs()
	}
	for _, s := range xp.Scripts {
		out := strings.TrimSpace(s.Output)
		if out == "" {
			out = strings.TrimSpace(s.Text)
		}
		p.Scripts = append(p.Scripts, Script{ID: s.ID, Output: out})
	}
	return p
}

func (e *xmlElement) attrs() Attrs {
	out := make(Attrs, len(e.Attrs))
	for _, a := range e.Attrs {
		out[a.Name.Local] = a.Value
	}
	return out
}
