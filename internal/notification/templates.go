package notification

// Mail gateway templates. The names are the gateway's endpoint paths.
const (
	TemplateReleaseOrder      = "release-order"
	TemplateInformDept        = "informDept"
	TemplateAccepting         = "accepting"
	TemplateROStatus          = "ro-status"
	TemplateBillResubmittedDD = "BillResubmittedDD"
	TemplateAssistantBill     = "assistantBill"
	TemplateApprovedTDCase    = "approvedTDCase"
	TemplateFaoNoteSheet      = "faoNotesheet"
	TemplateDirectorNoteSheet = "directorNotesheet"
	TemplateApprovedTFao      = "approvedTFao"
	TemplateUploadSanction    = "uploadSanction"
	TemplateNoteSheetCreate   = "notesheetcreate"
	TemplateNoteSheetRejected = "notesheetRejected"
)

var knownTemplates = map[string]bool{
	TemplateReleaseOrder:      true,
	TemplateInformDept:        true,
	TemplateAccepting:         true,
	TemplateROStatus:          true,
	TemplateBillResubmittedDD: true,
	TemplateAssistantBill:     true,
	TemplateApprovedTDCase:    true,
	TemplateFaoNoteSheet:      true,
	TemplateDirectorNoteSheet: true,
	TemplateApprovedTFao:      true,
	TemplateUploadSanction:    true,
	TemplateNoteSheetCreate:   true,
	TemplateNoteSheetRejected: true,
}

// Known reports whether the gateway serves template.
func Known(template string) bool {
	return knownTemplates[template]
}
