package memtools

import (
	"github.com/HendryAvila/flowstate/internal/memory"
	"github.com/HendryAvila/flowstate/internal/search"
)

// All returns every FlowState tool, wired to the store. sessionKey
// identifies this server process when counting distinct sessions for
// skill and pattern promotion.
func All(store *memory.Store, retriever *search.Retriever, sessionKey string) []Tool {
	return []Tool{
		// Projects and components
		NewProjectCreateTool(store),
		NewProjectListTool(store),
		NewProjectGetTool(store),
		NewProjectUpdateTool(store),
		NewProjectDeleteTool(store),
		NewComponentCreateTool(store),
		NewComponentListTool(store),
		NewComponentUpdateTool(store),
		NewComponentDeleteTool(store),
		NewChangeLogTool(store),
		NewChangesRecentTool(store),
		NewChangeDeleteTool(store),
		NewComponentHistoryTool(store),
		NewVariableSetTool(store),
		NewVariableListTool(store),
		NewVariableUpdateTool(store),
		NewVariableDeleteTool(store),
		NewMethodRecordTool(store),
		NewMethodListTool(store),
		NewMethodUpdateTool(store),
		NewMethodDeleteTool(store),

		// Problems and solutions
		NewProblemLogTool(store),
		NewProblemGetTool(store),
		NewProblemUpdateTool(store),
		NewProblemListOpenTool(store),
		NewProblemDeleteTool(store),
		NewAttemptLogTool(store),
		NewAttemptOutcomeTool(store),
		NewProblemSolveTool(store),
		NewProblemTreeTool(store),
		NewAttemptDeleteTool(store),
		NewSolutionDeleteTool(store),

		// Work tracking
		NewTodoAddTool(store),
		NewTodoListTool(store),
		NewTodoUpdateTool(store),
		NewTodoDeleteTool(store),
		NewLearningLogTool(store),
		NewLearningListTool(store),
		NewLearningVerifyTool(store),
		NewLearningDeleteTool(store),
		NewConversationLogTool(store),
		NewConversationListTool(store),
		NewConversationDeleteTool(store),
		NewSessionStartTool(store),
		NewSessionEndTool(store),
		NewSessionCurrentTool(store),
		NewSessionDeleteTool(store),

		// Retrieval
		NewContextTool(store),
		NewSearchTool(store, retriever),
		NewLinkTool(store),
		NewRelatedTool(store),

		// Intelligence
		NewSkillLearnTool(store, sessionKey),
		NewSkillApplyTool(store, sessionKey),
		NewSkillConfirmTool(store, sessionKey),
		NewSkillListTool(store),
		NewSkillDeleteTool(store),
		NewPatternRecordTool(store, sessionKey),
		NewPatternApplyTool(store, sessionKey),
		NewPatternConfirmTool(store, sessionKey),
		NewPatternListTool(store),
		NewPatternDeleteTool(store),
		NewStateSaveTool(store),
		NewStateChainTool(store),
		NewStateLatestTool(store),
		NewStateGetTool(store),
		NewStateDeleteTool(store),
		NewSessionInitializeTool(store),
		NewSessionFinalizeTool(store),
		NewPromoteTool(store),
		NewToolRegisterTool(store),
		NewToolUseRecordTool(store),
		NewToolUseRateTool(store),
		NewToolUsageListTool(store),
		NewToolRecommendTool(store),
		NewMetricLogTool(store),
		NewMetricListTool(store),
		NewTuningSuggestionsTool(store),

		// Maintenance
		NewStatsTool(store),
		NewReindexTool(store),
	}
}
