package writer

import (
	"encoding/xml"
	"io"
	"strconv"

	"psimaker/pkg/interaction"
)

// XMLEncoder renders a batch as a PSI-MI flavoured entry set.
type XMLEncoder struct{}

// ContentType implements Encoder.
func (XMLEncoder) ContentType() string { return "application/xml" }

// Extension implements Encoder.
func (XMLEncoder) Extension() string { return "xml" }

// Encode implements Encoder.
func (XMLEncoder) Encode(w io.Writer, b Batch) error {
	doc := xmlEntrySet{
		Xmlns:        "http://psi.hupo.org/mi/mif",
		Level:        2,
		Version:      5,
		MinorVersion: 4,
		Entry: xmlEntry{
			Source: xmlSource{Release: b.Run, Batch: b.Sequence},
		},
	}
	for i, rec := range b.Records {
		doc.Entry.Interactions = append(doc.Entry.Interactions, toXMLInteraction(strconv.Itoa(i+1), rec))
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type xmlEntrySet struct {
	XMLName      xml.Name `xml:"entrySet"`
	Xmlns        string   `xml:"xmlns,attr"`
	Level        int      `xml:"level,attr"`
	Version      int      `xml:"version,attr"`
	MinorVersion int      `xml:"minorVersion,attr"`
	Entry        xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	Source       xmlSource        `xml:"source"`
	Interactions []xmlInteraction `xml:"interactionList>interaction"`
}

type xmlSource struct {
	Release string `xml:"release,attr,omitempty"`
	Batch   int    `xml:"batch,attr"`
}

type xmlInteraction struct {
	ID              string                          `xml:"id,attr"`
	ShortLabel      string                          `xml:"names>shortLabel"`
	Type            string                          `xml:"interactionType"`
	DetectionMethod string                          `xml:"experimentList>experimentDescription>interactionDetectionMethod,omitempty"`
	HostOrganism    string                          `xml:"experimentList>experimentDescription>hostOrganism,omitempty"`
	Publication     string                          `xml:"experimentList>experimentDescription>bibref,omitempty"`
	FigureLegend    string                          `xml:"attributeList>figureLegend,omitempty"`
	Participants    []xmlParticipant                `xml:"participantList>participant"`
	Parameters      []interaction.Parameter         `xml:"parameterList>parameter,omitempty"`
	Conditions      []interaction.VariableCondition `xml:"variableParameterList>variableParameter,omitempty"`
}

type xmlParticipant struct {
	ID                   string       `xml:"id,attr"`
	Name                 string       `xml:"names>shortLabel"`
	Identifier           xmlXref      `xml:"xref>primaryRef"`
	SecondaryRefs        []xmlXref    `xml:"xref>secondaryRef,omitempty"`
	Type                 string       `xml:"interactorType,omitempty"`
	Organism             string       `xml:"organism>ncbiTaxId"`
	BiologicalRole       string       `xml:"biologicalRole,omitempty"`
	ExperimentalRole     string       `xml:"experimentalRoleList>experimentalRole,omitempty"`
	IdentificationMethod string       `xml:"participantIdentificationMethodList>participantIdentificationMethod,omitempty"`
	Preparation          string       `xml:"experimentalPreparationList>experimentalPreparation,omitempty"`
	ExpressedIn          string       `xml:"hostOrganismList>hostOrganism,omitempty"`
	Features             []xmlFeature `xml:"featureList>feature,omitempty"`
}

type xmlXref struct {
	DB        string `xml:"db,attr,omitempty"`
	ID        string `xml:"id,attr"`
	Qualifier string `xml:"refType,attr,omitempty"`
}

type xmlFeature struct {
	ID         string                  `xml:"id,attr"`
	ShortLabel string                  `xml:"names>shortLabel,omitempty"`
	Type       string                  `xml:"featureType,omitempty"`
	Xrefs      []xmlXref               `xml:"xref>secondaryRef,omitempty"`
	Range      *xmlRange               `xml:"featureRangeList>featureRange,omitempty"`
	Parameters []interaction.Parameter `xml:"parameterList>parameter,omitempty"`
}

type xmlRange struct {
	Start string `xml:"begin,attr,omitempty"`
	End   string `xml:"end,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
}

// toXMLInteraction keys the element by its position in the batch. Interaction
// numbers may repeat within a batch, so the number only goes into shortLabel.
func toXMLInteraction(id string, rec interaction.InteractionRecord) xmlInteraction {
	out := xmlInteraction{
		ID:              id,
		ShortLabel:      rec.Number,
		Type:            rec.Type,
		DetectionMethod: rec.DetectionMethod,
		HostOrganism:    rec.HostOrganism,
		Publication:     rec.Publication,
		FigureLegend:    rec.FigureLegend,
		Parameters:      rec.Parameters,
		Conditions:      rec.Conditions,
	}
	for i, p := range rec.Participants {
		out.Participants = append(out.Participants, toXMLParticipant(id, i, p))
	}
	return out
}

func toXMLParticipant(interactionID string, pos int, p interaction.ParticipantRecord) xmlParticipant {
	out := xmlParticipant{
		ID:                   interactionID + "-" + strconv.Itoa(pos+1),
		Name:                 p.Name(),
		Identifier:           xmlXref{DB: p.Database(), ID: p.ID()},
		Type:                 p.Type(),
		Organism:             p.Organism(),
		BiologicalRole:       p.Get(interaction.BiologicalRole),
		ExperimentalRole:     p.Role(),
		IdentificationMethod: p.Get(interaction.ParticipantIdentificationMethod),
		Preparation:          p.Get(interaction.ExperimentalPreparation),
		ExpressedIn:          p.Get(interaction.ExpressedInOrganism),
	}
	for _, x := range p.Xrefs() {
		out.SecondaryRefs = append(out.SecondaryRefs, xmlXref{DB: x.Database, ID: x.ID})
	}
	for _, f := range p.Features {
		xf := xmlFeature{
			ID:         out.ID + "-f" + strconv.Itoa(f.Index),
			ShortLabel: f.Get(interaction.FeatureShortName),
			Type:       f.Get(interaction.FeatureType),
			Parameters: f.Parameters(),
		}
		for _, x := range f.Xrefs() {
			xf.Xrefs = append(xf.Xrefs, xmlXref{DB: x.Database, ID: x.ID, Qualifier: x.Qualifier})
		}
		start, end, kind := f.Get(interaction.FeatureStart), f.Get(interaction.FeatureEnd), f.Get(interaction.FeatureRangeType)
		if start != "" || end != "" || kind != "" {
			xf.Range = &xmlRange{Start: start, End: end, Type: kind}
		}
		out.Features = append(out.Features, xf)
	}
	return out
}
