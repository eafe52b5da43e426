package research

// DefaultDatabases is used when the planner selects no databases.
var DefaultDatabases = []string{"au/cases", "au/legis"}

// Catalog lists the AustLII collections the planner may choose from.
var Catalog = []Database{
	{Code: "au/cases/cth/HCA", Name: "High Court of Australia", Description: "Decisions of the High Court of Australia"},
	{Code: "au/cases/cth/FCA", Name: "Federal Court of Australia", Description: "Single judge decisions of the Federal Court"},
	{Code: "au/cases/cth/FCAFC", Name: "Full Court of the Federal Court", Description: "Appellate decisions of the Full Federal Court"},
	{Code: "au/cases/cth/FamCA", Name: "Family Court of Australia", Description: "Family law decisions"},
	{Code: "au/cases/cth/AATA", Name: "Administrative Appeals Tribunal", Description: "Merits review of Commonwealth administrative decisions"},
	{Code: "au/cases/cth/FWC", Name: "Fair Work Commission", Description: "Workplace relations decisions"},
	{Code: "au/cases/cth/NNTT", Name: "National Native Title Tribunal", Description: "Native title determinations and mediations"},
	{Code: "au/cases/nsw/NSWSC", Name: "Supreme Court of New South Wales", Description: "NSW superior court decisions"},
	{Code: "au/cases/nsw/NSWCA", Name: "NSW Court of Appeal", Description: "NSW appellate decisions"},
	{Code: "au/cases/vic/VSC", Name: "Supreme Court of Victoria", Description: "Victorian superior court decisions"},
	{Code: "au/cases/vic/VSCA", Name: "Victorian Court of Appeal", Description: "Victorian appellate decisions"},
	{Code: "au/cases/qld/QSC", Name: "Supreme Court of Queensland", Description: "Queensland superior court decisions"},
	{Code: "au/cases/qld/QCA", Name: "Queensland Court of Appeal", Description: "Queensland appellate decisions"},
	{Code: "au/cases/wa/WASC", Name: "Supreme Court of Western Australia", Description: "WA superior court decisions"},
	{Code: "au/cases/sa/SASC", Name: "Supreme Court of South Australia", Description: "SA superior court decisions"},
	{Code: "au/cases/tas/TASSC", Name: "Supreme Court of Tasmania", Description: "Tasmanian superior court decisions"},
	{Code: "au/cases/act/ACTSC", Name: "Supreme Court of the ACT", Description: "ACT superior court decisions"},
	{Code: "au/cases/nt/NTSC", Name: "Supreme Court of the Northern Territory", Description: "NT superior court decisions"},
	{Code: "au/legis/cth/consol_act", Name: "Commonwealth Consolidated Acts", Description: "Current Commonwealth legislation"},
	{Code: "au/cases", Name: "All Australian case law", Description: "Broad mask over every court and tribunal"},
	{Code: "au/legis", Name: "All Australian legislation", Description: "Broad mask over every legislation collection"},
}
