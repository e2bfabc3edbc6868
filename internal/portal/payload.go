package portal

import (
	"net/url"
	"strconv"

	"github.com/opencourtdata/judgment-crawler/internal/crawler"
)

// defaultSearchPayload carries the full field set the listing endpoint
// expects; unused filters must still be present or the request is
// rejected. The app token is injected at dispatch time.
const defaultSearchPayload = "sEcho=1&iColumns=2&sColumns=,&iDisplayStart=0&iDisplayLength=100" +
	"&mDataProp_0=0&sSearch_0=&bRegex_0=false&bSearchable_0=true&bSortable_0=true" +
	"&mDataProp_1=1&sSearch_1=&bRegex_1=false&bSearchable_1=true&bSortable_1=true" +
	"&sSearch=&bRegex=false&iSortCol_0=0&sSortDir_0=asc&iSortingCols=1" +
	"&search_txt1=&search_txt2=&search_txt3=&search_txt4=&search_txt5=&pet_res=" +
	"&state_code=&state_code_li=&dist_code=null&case_no=&case_year=&from_date=&to_date=" +
	"&judge_name=&reg_year=&fulltext_case_type=&int_fin_party_val=undefined" +
	"&int_fin_case_val=undefined&int_fin_court_val=undefined&int_fin_decision_val=undefined" +
	"&act=&sel_search_by=undefined&sections=undefined&judge_txt=&act_txt=&section_txt=" +
	"&judge_val=&act_val=&year_val=&judge_arr=&flag=&disp_nature=&search_opt=PHRASE" +
	"&date_val=ALL&fcourt_type=2&citation_yr=&citation_vol=&citation_supl=&citation_page=" +
	"&case_no1=&case_year1=&pet_res1=&fulltext_case_type1=&citation_keyword=&sel_lang=" +
	"&proximity=&neu_cit_year=&neu_no=&ajax_req=true"

// defaultLinkPayload is the base form for document link resolution.
const defaultLinkPayload = "val=0&lang_flg=undefined&path=&search=+&citation_year=" +
	"&fcourt_type=2&file_type=undefined&nc_display=undefined&ajax_req=true"

func searchForm(q crawler.SearchQuery) url.Values {
	v, _ := url.ParseQuery(defaultSearchPayload)
	v.Set("sEcho", strconv.Itoa(q.Echo))
	v.Set("iDisplayStart", strconv.Itoa(q.Start))
	v.Set("iDisplayLength", strconv.Itoa(q.Length))
	v.Set("state_code", q.CourtCode)
	v.Set("from_date", q.FromDate.Format(crawler.DateLayout))
	v.Set("to_date", q.ToDate.Format(crawler.DateLayout))
	return v
}

func linkForm(ref string, rowIndex int) url.Values {
	v, _ := url.ParseQuery(defaultLinkPayload)
	v.Set("path", ref)
	v.Set("val", strconv.Itoa(rowIndex))
	return v
}
